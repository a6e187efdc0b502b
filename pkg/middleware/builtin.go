package middleware

import (
	"fmt"
	"log/slog"
	"time"
)

// Logging returns an entry that logs every message at debug level together
// with the time spent in the rest of the chain.
func Logging(logger *slog.Logger) Entry {
	return Entry{
		Name:      "logging",
		Direction: Both,
		Priority:  -1000,
		Handler: func(c *Context, next Next) error {
			start := time.Now()
			err := next()
			logger.Debug("pipeline",
				"conn", c.ConnID,
				"direction", c.Direction.String(),
				"size", len(c.Message),
				"dropped", c.Dropped(),
				"duration", time.Since(start),
				"error", err,
			)
			return err
		},
	}
}

// MaxSize returns an entry that rejects messages larger than limit bytes
// with ErrPolicy.
func MaxSize(limit int, dir Direction) Entry {
	return Entry{
		Name:      "max-size",
		Direction: dir,
		Priority:  -100,
		Handler: func(c *Context, next Next) error {
			if len(c.Message) > limit {
				return fmt.Errorf("%w: message of %d bytes exceeds %d", ErrPolicy, len(c.Message), limit)
			}
			return next()
		},
	}
}
