package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateNone, StateConnecting},
		{StateNone, StateClosed},
		{StateConnecting, StateConnected},
		{StateConnecting, StateReconnecting},
		{StateConnecting, StateTerminated},
		{StateConnecting, StateClosed},
		{StateConnected, StateDisconnected},
		{StateConnected, StateClosed},
		{StateConnected, StateError},
		{StateDisconnected, StateReconnecting},
		{StateDisconnected, StateTerminated},
		{StateReconnecting, StateConnecting},
		{StateReconnecting, StateClosed},
		{StateError, StateTerminated},
	}
	for _, tt := range allowed {
		assert.True(t, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	denied := []struct{ from, to State }{
		{StateNone, StateConnected},
		{StateConnected, StateReconnecting},
		{StateConnected, StateTerminated},
		{StateReconnecting, StateConnected},
		{StateClosed, StateConnecting},
		{StateTerminated, StateConnecting},
		{StateClosed, StateTerminated},
		{StateError, StateClosed},
	}
	for _, tt := range denied {
		assert.False(t, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStateIsTerminal(t *testing.T) {
	for s := StateNone; s <= StateError; s++ {
		want := s == StateClosed || s == StateTerminated
		assert.Equal(t, want, s.IsTerminal(), s.String())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "RECONNECTING", StateReconnecting.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
