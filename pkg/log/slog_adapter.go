package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints records through an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes rec.
func (a *SlogAdapter) Log(rec Record) {
	attrs := []slog.Attr{
		slog.String("conn_id", rec.ConnID),
		slog.String("role", rec.Role.String()),
		slog.String("kind", rec.Kind.String()),
	}
	if rec.Direction != DirectionNone {
		attrs = append(attrs, slog.String("direction", rec.Direction.String()))
	}
	if rec.Remote != "" {
		attrs = append(attrs, slog.String("remote", rec.Remote))
	}

	switch {
	case rec.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", rec.Frame.Size),
			slog.Bool("truncated", rec.Frame.Truncated),
		)
	case rec.State != nil:
		attrs = append(attrs,
			slog.String("old_state", rec.State.Old),
			slog.String("new_state", rec.State.New),
		)
		if rec.State.Reason != "" {
			attrs = append(attrs, slog.String("reason", rec.State.Reason))
		}
		if rec.State.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", rec.State.Attempt))
		}
	case rec.Event != nil:
		attrs = append(attrs, slog.String("event", rec.Event.Type.String()))
		if rec.Event.Code != 0 {
			attrs = append(attrs, slog.String("code", rec.Event.Code.String()))
		}
		if rec.Event.Reason != "" {
			attrs = append(attrs, slog.String("reason", rec.Event.Reason))
		}
	case rec.Error != nil:
		attrs = append(attrs, slog.String("error", rec.Error.Message))
		if rec.Error.Code != 0 {
			attrs = append(attrs, slog.String("code", rec.Error.Code.String()))
		}
		if rec.Error.Context != "" {
			attrs = append(attrs, slog.String("context", rec.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
