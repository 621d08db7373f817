// Package redact drives one pass per input stream: it feeds chunks to the
// streaming parser, classifies fields as they complete, correlates and masks
// at record end and emits each record with its findings summary.
package redact

import (
	"context"
	"log/slog"

	"piigate/internal/auditlog"
	"piigate/internal/ruleset"
	"piigate/internal/telemetry"
)

// Option configures an Engine.
type Option func(*Engine)

// WithTelemetry sets the sink receiving counters and sampled masked records.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithSampler selects which records are passed to telemetry as examples.
func WithSampler(s telemetry.Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// WithAudit sets the audit logger receiving masked records and summaries.
func WithAudit(l auditlog.LoggerInterface) Option {
	return func(e *Engine) {
		if l != nil {
			e.audit = l
		}
	}
}

// Engine owns the active ruleset and creates streams. It is safe for
// concurrent use; streams share nothing but the immutable snapshot.
type Engine struct {
	holder  *ruleset.Holder
	sink    telemetry.Sink
	sampler telemetry.Sampler
	audit   auditlog.LoggerInterface

	// faultHook is called at each processing stage. Tests use it to
	// inject panics.
	faultHook func(stage string)
}

// NewEngine creates an Engine serving the snapshots published by holder.
func NewEngine(holder *ruleset.Holder, opts ...Option) *Engine {
	e := &Engine{
		holder: holder,
		sink:   telemetry.Noop{},
		audit:  &auditlog.NoopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns the ruleset new records will use.
func (e *Engine) Snapshot() *ruleset.Snapshot {
	return e.holder.Load()
}

// Reload installs s. Records already in flight finish with the snapshot they
// started with. It returns the replaced snapshot.
func (e *Engine) Reload(s *ruleset.Snapshot) *ruleset.Snapshot {
	if s == nil {
		return e.holder.Load()
	}
	prev := e.holder.Swap(s)
	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version()
	}
	if prevVersion == s.Version() {
		slog.Debug("ruleset unchanged", "version", s.Version())
	} else {
		slog.Info("ruleset reloaded", "name", s.Name(), "version", s.Version(), "previous", prevVersion)
	}
	if s.DevelopmentSalt() {
		slog.Warn("HASH strategies use the built-in development secret; set PIIGATE_HASH_SECRET")
	}
	e.sink.RulesetReloaded(context.Background(), telemetry.ReloadEvent{Version: s.Version(), PrevVersion: prevVersion})
	return prev
}

// RejectReload reports a ruleset that failed validation. The active
// snapshot is kept.
func (e *Engine) RejectReload(err error) {
	current := e.holder.Load().Version()
	slog.Error("ruleset rejected, keeping current version", "version", current, "error", err)
	e.sink.RulesetReloaded(context.Background(), telemetry.ReloadEvent{Version: current, PrevVersion: current, Err: err})
}
