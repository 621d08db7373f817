package auditlog

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics exports the entry counters of l on reg as
// piigate_audit_entries_total{outcome}. Loggers without counters, such as
// NoopLogger, register nothing.
func RegisterMetrics(reg prometheus.Registerer, l LoggerInterface) error {
	sl, ok := l.(interface{ Stats() Stats })
	if !ok {
		return nil
	}
	outcomes := map[string]func(Stats) int64{
		"queued":  func(s Stats) int64 { return s.Queued },
		"written": func(s Stats) int64 { return s.Written },
		"dropped": func(s Stats) int64 { return s.Dropped },
		"failed":  func(s Stats) int64 { return s.Failed },
	}
	for outcome, pick := range outcomes {
		c := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "piigate_audit_entries_total",
			Help:        "Audit entries by outcome",
			ConstLabels: prometheus.Labels{"outcome": outcome},
		}, func() float64 { return float64(pick(sl.Stats())) })
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
