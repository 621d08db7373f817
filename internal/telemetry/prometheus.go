package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exports engine counters.
type Prometheus struct {
	records    *prometheus.CounterVec
	findings   *prometheus.CounterVec
	parseErrs  *prometheus.CounterVec
	overflows  prometheus.Counter
	truncated  prometheus.Counter
	recordTime prometheus.Histogram
	streams    *prometheus.CounterVec
	streamTime prometheus.Histogram
	reloads    *prometheus.CounterVec
	ruleset    *prometheus.GaugeVec
}

// NewPrometheus registers the engine metrics with reg. A nil reg uses the
// default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prometheus{
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_records_total",
			Help: "Records processed, by input format and outcome",
		}, []string{"format", "outcome"}),
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_findings_total",
			Help: "Findings by category and the rule that promoted them",
		}, []string{"category", "rule"}),
		parseErrs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_parse_errors_total",
			Help: "Parse errors by recoverability",
		}, []string{"recoverable"}),
		overflows: f.NewCounter(prometheus.CounterOpts{
			Name: "piigate_masking_overflows_total",
			Help: "PARTIAL masks that replaced the whole value",
		}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Name: "piigate_truncated_values_total",
			Help: "Values longer than the classification cap",
		}),
		recordTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "piigate_record_duration_seconds",
			Help:    "Time from record end to emitted output",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		streams: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_streams_total",
			Help: "Finished streams by input format and outcome",
		}, []string{"format", "outcome"}),
		streamTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "piigate_stream_duration_seconds",
			Help:    "Wall time of a stream from creation to flush or abort",
			Buckets: prometheus.DefBuckets,
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_ruleset_reloads_total",
			Help: "Ruleset reload attempts by result",
		}, []string{"result"}),
		ruleset: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "piigate_ruleset_info",
			Help: "Version of the active ruleset",
		}, []string{"version"}),
	}
}

func (p *Prometheus) RecordProcessed(_ context.Context, ev RecordEvent) {
	outcome := "ok"
	switch {
	case ev.Fallback:
		outcome = "fallback"
	case ev.Failed:
		outcome = "failed"
	}
	p.records.WithLabelValues(ev.Format, outcome).Inc()
	p.recordTime.Observe(ev.Duration.Seconds())
	if ev.Summary == nil {
		return
	}
	for _, f := range ev.Summary.Findings {
		p.findings.WithLabelValues(string(f.Category), f.Rule).Inc()
	}
	for _, pe := range ev.Summary.ParseErrors {
		p.parseErrs.WithLabelValues(strconv.FormatBool(pe.Recoverable)).Inc()
	}
	if ev.Summary.MaskingOverflows > 0 {
		p.overflows.Add(float64(ev.Summary.MaskingOverflows))
	}
	if ev.Summary.TruncatedFields > 0 {
		p.truncated.Add(float64(ev.Summary.TruncatedFields))
	}
}

func (p *Prometheus) StreamFinished(_ context.Context, ev StreamEvent) {
	outcome := "ok"
	if ev.Err != nil {
		outcome = "error"
	}
	p.streams.WithLabelValues(ev.Format, outcome).Inc()
	p.streamTime.Observe(ev.Duration.Seconds())
}

func (p *Prometheus) RulesetReloaded(_ context.Context, ev ReloadEvent) {
	if ev.Err != nil {
		p.reloads.WithLabelValues("rejected").Inc()
		return
	}
	p.reloads.WithLabelValues("applied").Inc()
	p.ruleset.Reset()
	p.ruleset.WithLabelValues(ev.Version).Set(1)
}
