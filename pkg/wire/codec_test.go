package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORCodec(t *testing.T) {
	codec := CBORCodec{}

	t.Run("DataFrame", func(t *testing.T) {
		data, err := codec.Encode(DataFrame([]byte("hello")))
		require.NoError(t, err)

		f, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, FrameData, f.Kind)
		assert.Equal(t, []byte("hello"), f.Payload)
		assert.Nil(t, f.Event)
	})

	t.Run("EventFrame", func(t *testing.T) {
		ev := NewEvent(EventInfo, CodeQueueDrained, "drained 3")
		ev.ConnID = "c-1"

		data, err := codec.Encode(EventFrame(ev))
		require.NoError(t, err)

		f, err := codec.Decode(data)
		require.NoError(t, err)
		require.NotNil(t, f.Event)
		assert.Equal(t, FrameEvent, f.Kind)
		assert.Equal(t, EventInfo, f.Event.Type)
		assert.Equal(t, CodeQueueDrained, f.Event.Code)
		assert.Equal(t, "drained 3", f.Event.Reason)
		assert.Equal(t, "c-1", f.Event.ConnID)
		assert.True(t, ev.Timestamp.Equal(f.Event.Timestamp), "timestamp %v != %v", ev.Timestamp, f.Event.Timestamp)
	})

	t.Run("Garbage", func(t *testing.T) {
		inputs := [][]byte{
			[]byte("not cbor at all"),
			{0xff},
			{},
		}
		for _, in := range inputs {
			_, err := codec.Decode(in)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "input %x: err = %v", in, err)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		data, err := Marshal(map[int]any{1: 9})
		require.NoError(t, err)

		_, err = codec.Decode(data)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("EventFrameWithoutEvent", func(t *testing.T) {
		_, err := codec.Encode(Frame{Kind: FrameEvent})
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestRawCodec(t *testing.T) {
	codec := RawCodec{}

	data, err := codec.Encode(DataFrame([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	f, err := codec.Decode([]byte("anything"))
	require.NoError(t, err)
	assert.Equal(t, FrameData, f.Kind)

	_, err = codec.Encode(EventFrame(Event{Type: EventInfo, Timestamp: time.Now()}))
	assert.Error(t, err)
}

func TestCloseCodeRanges(t *testing.T) {
	tests := []struct {
		code        CloseCode
		standard    bool
		private     bool
		application bool
		sendable    bool
	}{
		{CloseNormalClosure, true, false, false, true},
		{CloseAbnormalClosure, true, false, false, false},
		{CloseTLSHandshake, true, false, false, false},
		{CodeReconnecting, false, true, false, true},
		{CloseInactivity, false, false, true, true},
		{CodeNone, false, false, false, false},
		{CloseCode(2000), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.standard, tt.code.IsStandard())
			assert.Equal(t, tt.private, tt.code.IsPrivate())
			assert.Equal(t, tt.application, tt.code.IsApplication())
			assert.Equal(t, tt.sendable, tt.code.Sendable())
		})
	}
}

func TestCloseCodeString(t *testing.T) {
	assert.Equal(t, "POLICY_VIOLATION", ClosePolicyViolation.String())
	assert.Equal(t, "DO_NOT_RECONNECT", CloseDoNotReconnect.String())
	assert.Equal(t, "CODE_4999", CloseCode(4999).String())
}
