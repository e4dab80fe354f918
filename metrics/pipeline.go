package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsProcessed = Factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: FQName("jobs_processed_total"),
			Help: "Ingest jobs processed, by outcome",
		},
		[]string{"outcome"},
	)
	UploadRetries = Factory.NewCounter(
		prometheus.CounterOpts{
			Name: FQName("upload_retries_total"),
			Help: "Retriable upload faults that triggered a backoff retry",
		},
	)
	UploadDuration = Factory.NewSummary(
		prometheus.SummaryOpts{
			Name: FQName("upload_duration_seconds"),
			Help: "Wall-clock duration of resumable uploads in seconds",
		},
	)
	PlaylistLinkFailures = Factory.NewCounter(
		prometheus.CounterOpts{
			Name: FQName("playlist_link_failures_total"),
			Help: "Non-fatal failures linking an uploaded video into its playlist",
		},
	)
)
