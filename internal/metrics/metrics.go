// Package metrics exposes the pipeline's batch counters on a dedicated
// Prometheus registry. A single-shot batch run can dump them at exit;
// long-lived callers can mount the registry on their own handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all pipeline metrics.
var Registry = prometheus.NewRegistry()

var (
	// FilesProcessed counts files that completed the full pipeline.
	FilesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ctdkit",
		Name:      "files_processed_total",
		Help:      "Instrument files successfully processed end to end.",
	})

	// FilesFailed counts per-file pipeline failures by stage.
	FilesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctdkit",
		Name:      "files_failed_total",
		Help:      "Instrument files that failed, labelled by pipeline stage.",
	}, []string{"stage"})

	// SamplesFlagged counts canonical samples by quality flag.
	SamplesFlagged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctdkit",
		Name:      "samples_flagged_total",
		Help:      "Canonical samples produced, labelled by quality flag.",
	}, []string{"flag"})

	// ExportBytes counts bytes written per target format.
	ExportBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctdkit",
		Name:      "export_bytes_total",
		Help:      "Bytes of exported dataset files, labelled by format.",
	}, []string{"format"})
)

func init() {
	Registry.MustRegister(FilesProcessed, FilesFailed, SamplesFlagged, ExportBytes)
}
