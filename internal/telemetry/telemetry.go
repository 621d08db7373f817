// Package telemetry receives counters and sampled, already-masked examples
// from the redaction engine. Nothing that reaches a Sink carries raw values.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"piigate/internal/core"
)

// RecordEvent describes one processed record.
type RecordEvent struct {
	StreamID       string
	Format         string
	RulesetVersion string
	Summary        *core.Summary
	// Masked is the redacted record as emitted. It is only set when the
	// record was selected by the sampler.
	Masked   []byte
	Failed   bool
	Fallback bool
	Duration time.Duration
}

// StreamEvent describes a finished stream.
type StreamEvent struct {
	StreamID string
	Format   string
	Records  int
	Failed   int
	Duration time.Duration
	// Err is set when the stream terminated on a fatal parse error or was aborted.
	Err error
}

// ReloadEvent describes a configuration swap.
type ReloadEvent struct {
	Version     string
	PrevVersion string
	Err         error
}

// Sink consumes engine telemetry. Implementations must be safe for
// concurrent use and must not block.
type Sink interface {
	RecordProcessed(ctx context.Context, ev RecordEvent)
	StreamFinished(ctx context.Context, ev StreamEvent)
	RulesetReloaded(ctx context.Context, ev ReloadEvent)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordProcessed(context.Context, RecordEvent) {}
func (Noop) StreamFinished(context.Context, StreamEvent)  {}
func (Noop) RulesetReloaded(context.Context, ReloadEvent) {}

// Multi fans out to several sinks in order.
type Multi []Sink

func (m Multi) RecordProcessed(ctx context.Context, ev RecordEvent) {
	for _, s := range m {
		s.RecordProcessed(ctx, ev)
	}
}

func (m Multi) StreamFinished(ctx context.Context, ev StreamEvent) {
	for _, s := range m {
		s.StreamFinished(ctx, ev)
	}
}

func (m Multi) RulesetReloaded(ctx context.Context, ev ReloadEvent) {
	for _, s := range m {
		s.RulesetReloaded(ctx, ev)
	}
}

// Sampler selects records for example capture. The decision depends only on
// the stream ID and sequence number, so replaying a stream samples the same
// records.
type Sampler struct {
	threshold uint64
	all       bool
}

// NewSampler creates a Sampler keeping roughly rate of all records.
// Rates outside [0, 1] are clamped.
func NewSampler(rate float64) Sampler {
	switch {
	case rate <= 0:
		return Sampler{}
	case rate >= 1:
		return Sampler{all: true}
	}
	return Sampler{threshold: uint64(rate * float64(^uint64(0)))}
}

// Sample reports whether the record should be captured.
func (s Sampler) Sample(streamID string, seq uint64) bool {
	if s.all {
		return true
	}
	if s.threshold == 0 {
		return false
	}
	d := xxhash.New()
	_, _ = d.WriteString(streamID)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(strconv.FormatUint(seq, 10))
	return d.Sum64() < s.threshold
}
