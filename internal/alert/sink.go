// Package alert delivers validation verdicts to operators: the log, Prometheus,
// UDP listeners and an alarm GPIO line.
package alert

import (
	"context"

	"spoofwatch/internal/validate"
)

// Sink receives verdicts. Implementations must not block the ingest loop for
// long; anything slow belongs behind its own goroutine.
type Sink interface {
	Fail(ctx context.Context, v validate.Verdict)
	Pass(ctx context.Context, v validate.Verdict)
	Skip(ctx context.Context, v validate.Verdict)
}

// Dispatch routes v to the Sink method matching its status.
func Dispatch(ctx context.Context, s Sink, v validate.Verdict) {
	if s == nil {
		return
	}
	switch v.Status {
	case validate.Fail:
		s.Fail(ctx, v)
	case validate.Skipped:
		s.Skip(ctx, v)
	default:
		s.Pass(ctx, v)
	}
}

// Multi fans a verdict out to every sink in order. Nil entries are ignored.
type Multi []Sink

func (m Multi) Fail(ctx context.Context, v validate.Verdict) {
	for _, s := range m {
		if s != nil {
			s.Fail(ctx, v)
		}
	}
}

func (m Multi) Pass(ctx context.Context, v validate.Verdict) {
	for _, s := range m {
		if s != nil {
			s.Pass(ctx, v)
		}
	}
}

func (m Multi) Skip(ctx context.Context, v validate.Verdict) {
	for _, s := range m {
		if s != nil {
			s.Skip(ctx, v)
		}
	}
}
