package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "custom_forms"

// Recorder holds the service's prometheus collectors. It also receives the
// best-effort events of the PDF pipeline.
type Recorder struct {
	signaturesSkipped prometheus.Counter
	mergeSkipped      prometheus.Counter
	formsSubmitted    *prometheus.CounterVec
	actionsTaken      *prometheus.CounterVec
	formsCancelled    prometheus.Counter
	renderDuration    prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		signaturesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdf",
			Name:      "signatures_skipped_total",
			Help:      "Signatures that could not be fitted in their widget.",
		}),
		mergeSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pdf",
			Name:      "merge_inputs_skipped_total",
			Help:      "Documents left out of a merge because they could not be read.",
		}),
		formsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forms_submitted_total",
			Help:      "Form submissions by kind (create or edit).",
		}, []string{"kind"}),
		actionsTaken: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_taken_total",
			Help:      "Workflow actions recorded, by action type and result.",
		}, []string{"type", "result"}),
		formsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forms_cancelled_total",
			Help:      "Forms cancelled.",
		}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pdf",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a form PDF.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// SignatureSkipped implements pdf.Observer
func (r *Recorder) SignatureSkipped(string) {
	r.signaturesSkipped.Inc()
}

// MergeInputSkipped implements pdf.Observer
func (r *Recorder) MergeInputSkipped(string) {
	r.mergeSkipped.Inc()
}

// FormSubmitted counts a create or edit
func (r *Recorder) FormSubmitted(created bool) {
	kind := "edit"
	if created {
		kind = "create"
	}
	r.formsSubmitted.WithLabelValues(kind).Inc()
}

// ActionTaken counts a recorded action. A nil result is reported as "none".
func (r *Recorder) ActionTaken(actionType string, result *bool) {
	label := "none"
	if result != nil {
		label = "false"
		if *result {
			label = "true"
		}
	}
	r.actionsTaken.WithLabelValues(actionType, label).Inc()
}

// FormCancelled counts a cancellation
func (r *Recorder) FormCancelled() {
	r.formsCancelled.Inc()
}

// ObserveRender records how long a render took
func (r *Recorder) ObserveRender(d time.Duration) {
	r.renderDuration.Observe(d.Seconds())
}
