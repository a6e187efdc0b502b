// Package commands implements the resock-log CLI commands.
package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/wire"
)

// FilterOptions holds the textual filter flags shared by view, filter and
// export.
type FilterOptions struct {
	ConnID    string
	Role      string
	Kind      string
	Direction string
	Event     string
	Code      string
	TimeStart string
	TimeEnd   string
}

// BuildFilter parses opts into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{ConnID: opts.ConnID}

	if opts.Role != "" {
		r, err := parseRole(opts.Role)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Role = &r
	}
	if opts.Kind != "" {
		k, ok := log.ParseKind(strings.ToUpper(opts.Kind))
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid kind: %s (must be frame, state, event, or error)", opts.Kind)
		}
		filter.Kind = &k
	}
	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if opts.Event != "" {
		e, err := parseEventType(opts.Event)
		if err != nil {
			return log.Filter{}, err
		}
		filter.EventType = &e
	}
	if opts.Code != "" {
		n, err := strconv.ParseUint(opts.Code, 10, 16)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid code: %s", opts.Code)
		}
		c := wire.CloseCode(n)
		filter.Code = &c
	}
	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// parseRole parses a role string (case-insensitive).
func parseRole(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return log.RoleClient, nil
	case "server":
		return log.RoleServer, nil
	default:
		return 0, fmt.Errorf("invalid role: %s (must be client or server)", s)
	}
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// parseEventType accepts names like "close" or "new_connection".
func parseEventType(s string) (wire.EventType, error) {
	want := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for t := wire.EventNewConnection; t <= wire.EventInfo; t++ {
		if t.String() == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid event type: %s", s)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

const timeLayout = "2006-01-02T15:04:05.000000Z"
