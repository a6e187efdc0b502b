package log

import "github.com/resock/resock-go/pkg/wire"

// Observer records lifecycle events as event records. It satisfies the
// plugin observer contract so it can be registered on a broadcaster.
type Observer struct {
	logger Logger
	role   Role
}

// NewObserver returns an observer writing to logger.
func NewObserver(logger Logger, role Role) *Observer {
	return &Observer{logger: logger, role: role}
}

// Observe records ev.
func (o *Observer) Observe(ev wire.Event) error {
	o.logger.Log(EventRec(o.role, ev))
	return nil
}

// Name returns the display name.
func (o *Observer) Name() string {
	return "protocol-log"
}
