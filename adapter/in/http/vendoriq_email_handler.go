package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/in"
	"vendoriq_server/core/service/ingest"
	"vendoriq_server/core/service/schedule"
	"vendoriq_server/pkg/apperr"
	"vendoriq_server/pkg/response"
)

// =============================================================================
// Email Ingestion Handler
// =============================================================================

// EmailHandler serves manual ingestion runs and the recurring-job endpoints.
type EmailHandler struct {
	ingestion in.IngestionService
	jobs      in.JobService
}

// NewEmailHandler creates a new email ingestion handler.
func NewEmailHandler(ingestion in.IngestionService, jobs in.JobService) *EmailHandler {
	return &EmailHandler{ingestion: ingestion, jobs: jobs}
}

func (h *EmailHandler) Register(protected fiber.Router) {
	protected.Post("/emails/fetch", h.Fetch)
	protected.Get("/emails/jobs", h.ListJobs)
	protected.Delete("/emails/jobs/:jobId", h.CancelJob)
}

// =============================================================================
// Request Models
// =============================================================================

// fetchRequest drives both modes: "manual" runs the pipeline now, "auto"
// registers a recurring job instead.
type fetchRequest struct {
	FromDate  string   `json:"from_date"`
	Senders   []string `json:"senders"`
	OnlyPDF   *bool    `json:"only_pdf"`
	ForceSync bool     `json:"force_sync"`
	Mode      string   `json:"mode"`
	Frequency string   `json:"frequency"`
}

func (r *fetchRequest) filters() domain.FetchFilters {
	onlyPDF := true
	if r.OnlyPDF != nil {
		onlyPDF = *r.OnlyPDF
	}
	return domain.FetchFilters{
		Senders:   r.Senders,
		OnlyPDF:   onlyPDF,
		ForceSync: r.ForceSync,
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (h *EmailHandler) Fetch(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	var req fetchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.FromDate == "" {
		return apperr.MissingField("from_date")
	}

	fromDate, err := time.Parse("2006-01-02", req.FromDate)
	if err != nil {
		if fromDate, err = time.Parse(time.RFC3339, req.FromDate); err != nil {
			return apperr.BadRequest("from_date must be YYYY-MM-DD or RFC3339")
		}
	}

	switch req.Mode {
	case "", "manual":
		result, err := h.ingestion.Fetch(c.Context(), userID, fromDate, req.filters())
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrUserNotFound):
				return apperr.NotFound("user")
			case errors.Is(err, ingest.ErrNotConnected):
				return apperr.NotConnected()
			default:
				return apperr.InternalWithError(err)
			}
		}
		return response.OK(c, result)

	case "auto":
		if req.Frequency == "" {
			return apperr.MissingField("frequency")
		}
		jobID, err := h.jobs.Create(c.Context(), userID, fromDate, domain.Frequency(req.Frequency), req.filters())
		if err != nil {
			if errors.Is(err, schedule.ErrInvalidFrequency) {
				return apperr.BadRequest("frequency must be hourly, daily or weekly")
			}
			return apperr.InternalWithError(err)
		}
		return response.Created(c, fiber.Map{
			"job_id":    jobID,
			"frequency": req.Frequency,
		})

	default:
		return apperr.BadRequest("mode must be manual or auto")
	}
}

func (h *EmailHandler) ListJobs(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	jobs := h.jobs.List(userID)
	views := make([]fiber.Map, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, fiber.Map{
			"job_id":      job.ID,
			"frequency":   job.Frequency,
			"from_date":   job.FromDate.Format("2006-01-02"),
			"senders":     job.Filters.Senders,
			"only_pdf":    job.Filters.OnlyPDF,
			"created_at":  job.CreatedAt.UTC().Format(time.RFC3339),
			"next_run_at": job.NextRunAt.UTC().Format(time.RFC3339),
		})
	}
	return response.OKWithMeta(c, views, &response.Meta{Total: len(views)})
}

func (h *EmailHandler) CancelJob(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	jobID := c.Params("jobId")
	if err := h.jobs.Cancel(c.Context(), userID, jobID); err != nil {
		if errors.Is(err, schedule.ErrJobNotFound) {
			return apperr.NotFound("scheduled job")
		}
		return apperr.InternalWithError(err)
	}
	return response.NoContent(c)
}
