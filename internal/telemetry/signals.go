package telemetry

import (
	"context"

	"github.com/zoobzio/capitan"
)

// Signals for engine lifecycle events.
var (
	SignalRecordSampled   = capitan.NewSignal("piigate.record.sampled", "Masked record captured for tuning")
	SignalRecordFailed    = capitan.NewSignal("piigate.record.failed", "Record emitted with an error marker")
	SignalStreamFinished  = capitan.NewSignal("piigate.stream.finished", "Stream flushed or aborted")
	SignalRulesetReloaded = capitan.NewSignal("piigate.ruleset.reloaded", "Ruleset snapshot swapped")
)

// Keys for typed event data.
var (
	KeyStreamID      = capitan.NewStringKey("stream_id")
	KeyRecordID      = capitan.NewStringKey("record_id")
	KeyFormat        = capitan.NewStringKey("format")
	KeyVersion       = capitan.NewStringKey("ruleset_version")
	KeyPrevVersion   = capitan.NewStringKey("previous_version")
	KeyMaskedExample = capitan.NewStringKey("masked_example")
	KeyFindingCount  = capitan.NewIntKey("finding_count")
	KeyRecordCount   = capitan.NewIntKey("record_count")
	KeyFailedCount   = capitan.NewIntKey("failed_count")
	KeyDuration      = capitan.NewDurationKey("duration")
	KeyError         = capitan.NewErrorKey("error")
)

// Signals forwards lifecycle events and sampled examples to capitan.
type Signals struct{}

func (Signals) RecordProcessed(ctx context.Context, ev RecordEvent) {
	findings := 0
	recordID := ""
	if ev.Summary != nil {
		findings = len(ev.Summary.Findings)
		recordID = ev.Summary.RecordID
	}
	if ev.Failed {
		capitan.Emit(ctx, SignalRecordFailed,
			KeyStreamID.Field(ev.StreamID),
			KeyRecordID.Field(recordID),
			KeyFormat.Field(ev.Format),
		)
	}
	if ev.Masked == nil {
		return
	}
	capitan.Emit(ctx, SignalRecordSampled,
		KeyStreamID.Field(ev.StreamID),
		KeyRecordID.Field(recordID),
		KeyFormat.Field(ev.Format),
		KeyVersion.Field(ev.RulesetVersion),
		KeyFindingCount.Field(findings),
		KeyMaskedExample.Field(string(ev.Masked)),
	)
}

func (Signals) StreamFinished(ctx context.Context, ev StreamEvent) {
	fields := []capitan.Field{
		KeyStreamID.Field(ev.StreamID),
		KeyFormat.Field(ev.Format),
		KeyRecordCount.Field(ev.Records),
		KeyFailedCount.Field(ev.Failed),
		KeyDuration.Field(ev.Duration),
	}
	if ev.Err != nil {
		fields = append(fields, KeyError.Field(ev.Err))
		capitan.Error(ctx, SignalStreamFinished, fields...)
		return
	}
	capitan.Emit(ctx, SignalStreamFinished, fields...)
}

func (Signals) RulesetReloaded(ctx context.Context, ev ReloadEvent) {
	fields := []capitan.Field{
		KeyVersion.Field(ev.Version),
		KeyPrevVersion.Field(ev.PrevVersion),
	}
	if ev.Err != nil {
		fields = append(fields, KeyError.Field(ev.Err))
		capitan.Error(ctx, SignalRulesetReloaded, fields...)
		return
	}
	capitan.Emit(ctx, SignalRulesetReloaded, fields...)
}
