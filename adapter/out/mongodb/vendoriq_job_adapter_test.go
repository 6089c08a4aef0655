package mongodb

import (
	"reflect"
	"testing"
	"time"

	"vendoriq_server/core/domain"
)

// A job must survive the document round trip intact; a restored scheduler
// runs with exactly the filters the job was created with.
func TestJobDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		job  domain.ScheduledJob
	}{
		{
			name: "force sync with senders",
			job: domain.ScheduledJob{
				ID:       "u1_1717243200000_daily",
				UserID:   "u1",
				FromDate: created.AddDate(0, -1, 0),
				Filters: domain.FetchFilters{
					Senders:   []string{"billing@acme.com", "no-reply@utility.io"},
					OnlyPDF:   true,
					ForceSync: true,
				},
				Frequency: domain.FrequencyDaily,
				CreatedAt: created,
				NextRunAt: created.Add(21 * time.Hour),
			},
		},
		{
			name: "defaults",
			job: domain.ScheduledJob{
				ID:        "u2_1717243200001_hourly",
				UserID:    "u2",
				FromDate:  created,
				Filters:   domain.FetchFilters{OnlyPDF: false},
				Frequency: domain.FrequencyHourly,
				CreatedAt: created,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDomainJob(toJobDocument(&tt.job))
			if !reflect.DeepEqual(*got, tt.job) {
				t.Errorf("round trip changed the job:\n got  %+v\n want %+v", *got, tt.job)
			}
		})
	}
}
