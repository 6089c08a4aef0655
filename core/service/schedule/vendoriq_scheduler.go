// Package schedule manages recurring ingestion jobs. Jobs are persisted so
// that timers survive restarts; the in-memory cron entries are rebuilt from
// the job table on startup.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/in"
	"vendoriq_server/core/port/out"
)

var (
	ErrJobNotFound      = errors.New("scheduled job not found")
	ErrInvalidFrequency = errors.New("invalid scheduling frequency")
	ErrStopped          = errors.New("scheduler is stopped")
)

// entry pairs a persisted job with its live cron registration.
type entry struct {
	job     *domain.ScheduledJob
	cronID  cron.EntryID
	running bool
}

// Scheduler drives recurring ingestion runs through robfig/cron. All jobs
// live in the job table; the cron entries and the jobs map are a cache of it.
type Scheduler struct {
	cron      *cron.Cron
	jobs      out.JobRepository
	ingestion in.IngestionService
	log       zerolog.Logger

	allowMinute bool

	mu      sync.RWMutex
	entries map[string]*entry // jobID -> entry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

var _ in.JobService = (*Scheduler)(nil)

// New creates a Scheduler. allowMinute enables the minute cadence, which is
// meant for development environments only.
func New(jobs out.JobRepository, ingestion in.IngestionService, log zerolog.Logger, allowMinute bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		jobs:        jobs,
		ingestion:   ingestion,
		log:         log,
		allowMinute: allowMinute,
		entries:     make(map[string]*entry),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// ===== Lifecycle =====

// Start begins executing registered timers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	s.log.Info().Int("jobs", n).Msg("scheduler started")
}

// Stop halts the timers, cancels in-flight runs and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()
	<-cronCtx.Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// Restore rebuilds timers from the job table. A job whose persisted
// next_run_at lies in the past missed at least one tick while the process
// was down and is run once immediately before resuming its cadence.
func (s *Scheduler) Restore(ctx context.Context) error {
	rows, err := s.jobs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	restored, caughtUp := 0, 0
	for _, job := range rows {
		// register overwrites NextRunAt with the upcoming tick; the
		// persisted value is what tells us a tick was missed.
		missedAt := job.NextRunAt

		if err := s.register(job); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("dropping unrestorable job")
			continue
		}
		restored++

		if !missedAt.IsZero() && missedAt.Before(s.now()) {
			caughtUp++
			s.launch(job.ID)
		}
	}

	s.log.Info().Int("restored", restored).Int("caught_up", caughtUp).Msg("scheduler state restored")
	return nil
}

// ===== JobService =====

// Create persists a new job and registers its timer. The returned id is
// derived, not random, so a client retrying the same create within the same
// millisecond cannot produce two jobs.
func (s *Scheduler) Create(ctx context.Context, userID string, fromDate time.Time, frequency domain.Frequency, filters domain.FetchFilters) (string, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return "", ErrStopped
	}

	if !frequency.Valid() || (frequency == domain.FrequencyMinute && !s.allowMinute) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}

	created := s.now()
	job := &domain.ScheduledJob{
		ID:        fmt.Sprintf("%s_%d_%s", userID, created.UnixMilli(), frequency),
		UserID:    userID,
		FromDate:  fromDate,
		Filters:   filters,
		Frequency: frequency,
		CreatedAt: created,
	}

	if err := s.jobs.Insert(ctx, job); err != nil {
		if errors.Is(err, out.ErrJobExists) {
			// Exact re-submission within the same millisecond: the original
			// job and its timer stand, a second timer would double the runs.
			s.log.Warn().Str("job_id", job.ID).Msg("duplicate job create ignored, keeping original")
			return job.ID, nil
		}
		return "", fmt.Errorf("failed to persist scheduled job: %w", err)
	}

	if err := s.register(job); err != nil {
		// Roll back the row rather than leave a job that will never fire.
		if delErr := s.jobs.Delete(ctx, userID, job.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("job_id", job.ID).Msg("failed to roll back job row")
		}
		return "", err
	}

	if err := s.jobs.UpdateNextRun(ctx, job.ID, job.NextRunAt); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist next run time")
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("frequency", string(frequency)).
		Time("next_run", job.NextRunAt).
		Msg("scheduled ingestion job")

	return job.ID, nil
}

// List returns the live jobs for a user, oldest first.
func (s *Scheduler) List(userID string) []*domain.ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []*domain.ScheduledJob{}
	for _, e := range s.entries {
		if e.job.UserID != userID {
			continue
		}
		copied := *e.job
		copied.NextRunAt = s.cron.Entry(e.cronID).Next
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

// Cancel removes the timer and deletes the job row. Ownership is enforced:
// a job belonging to another user reads as not found.
func (s *Scheduler) Cancel(ctx context.Context, userID, jobID string) error {
	s.mu.Lock()
	e, ok := s.entries[jobID]
	if !ok || e.job.UserID != userID {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, jobID)
	s.mu.Unlock()

	if err := s.jobs.Delete(ctx, userID, jobID); err != nil {
		return fmt.Errorf("failed to delete job row: %w", err)
	}

	s.log.Info().Str("job_id", jobID).Str("user_id", userID).Msg("cancelled ingestion job")
	return nil
}

// ===== Internals =====

// register adds the cron timer for a job and records it in the entries map.
// On success job.NextRunAt is set to the first upcoming tick.
func (s *Scheduler) register(job *domain.ScheduledJob) error {
	expr, err := job.Frequency.CronExpr()
	if err != nil {
		return err
	}

	jobID := job.ID
	cronID, err := s.cron.AddFunc(expr, func() { s.launch(jobID) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	job.NextRunAt = s.cron.Entry(cronID).Next

	s.mu.Lock()
	s.entries[jobID] = &entry{job: job, cronID: cronID}
	s.mu.Unlock()
	return nil
}

// launch starts one run for the job unless a previous run is still going.
// Overlapping ticks of the same job are dropped, not queued.
func (s *Scheduler) launch(jobID string) {
	s.mu.Lock()
	e, ok := s.entries[jobID]
	if !ok || s.stopped || e.running {
		s.mu.Unlock()
		return
	}
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(e)
}

func (s *Scheduler) run(e *entry) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	job := e.job
	log := s.log.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	log.Info().Msg("scheduled ingestion run starting")
	start := s.now()

	result, err := s.ingestion.Fetch(s.ctx, job.UserID, job.FromDate, job.Filters)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled ingestion run failed")
	} else {
		log.Info().
			Int("processed", result.TotalProcessed).
			Int("uploaded", result.FilesUploaded).
			Dur("duration", time.Since(start)).
			Msg("scheduled ingestion run completed")
	}

	// Persist the next tick so a restart can tell whether this job missed
	// runs while the process was down.
	next := s.cron.Entry(e.cronID).Next
	if err := s.jobs.UpdateNextRun(s.ctx, job.ID, next); err != nil {
		log.Error().Err(err).Msg("failed to persist next run time")
	}
}
