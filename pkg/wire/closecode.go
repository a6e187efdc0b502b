package wire

import "fmt"

// CloseCode is a WebSocket close status, or a resock event code in the
// private and application ranges.
type CloseCode uint16

// CodeNone is used for events that carry no close semantics.
const CodeNone CloseCode = 0

// Standard close codes (RFC 6455 section 7.4.1 and the IANA registry).
const (
	CloseNormalClosure      CloseCode = 1000
	CloseGoingAway          CloseCode = 1001
	CloseProtocolError      CloseCode = 1002
	CloseUnsupportedData    CloseCode = 1003
	CloseReserved           CloseCode = 1004
	CloseNoStatusReceived   CloseCode = 1005
	CloseAbnormalClosure    CloseCode = 1006
	CloseInvalidPayload     CloseCode = 1007
	ClosePolicyViolation    CloseCode = 1008
	CloseMessageTooBig      CloseCode = 1009
	CloseMandatoryExtension CloseCode = 1010
	CloseInternalError      CloseCode = 1011
	CloseServiceRestart     CloseCode = 1012
	CloseTryAgainLater      CloseCode = 1013
	CloseBadGateway         CloseCode = 1014
	CloseTLSHandshake       CloseCode = 1015
)

// Private-use codes reported by resock itself. They never appear on the wire
// as close frames, only as event codes.
const (
	// CodeReconnecting is reported when a retry has been scheduled.
	CodeReconnecting CloseCode = 3000

	// CodeReconnected is reported when a retry reached Connected.
	CodeReconnected CloseCode = 3001

	// CodeRetriesExhausted is reported once when the reconnect policy gives up.
	CodeRetriesExhausted CloseCode = 3002

	// CodeQueueDrained is reported after queued messages were flushed.
	CodeQueueDrained CloseCode = 3003

	// CodePipelineFault is reported when a middleware handler failed.
	CodePipelineFault CloseCode = 3004

	// CodeObserverFault is reported when a lifecycle observer failed.
	CodeObserverFault CloseCode = 3005
)

// Application codes.
const (
	// CloseDoNotReconnect tells the peer not to reconnect.
	CloseDoNotReconnect CloseCode = 4000

	// CloseInactivity is used by servers closing idle sessions.
	CloseInactivity CloseCode = 4001
)

// IsStandard reports whether c is in the RFC 6455 range 1000-1015.
func (c CloseCode) IsStandard() bool {
	return c >= 1000 && c <= 1015
}

// IsPrivate reports whether c is in the private range 3000-3999.
func (c CloseCode) IsPrivate() bool {
	return c >= 3000 && c < 4000
}

// IsApplication reports whether c is in the application range 4000-4999.
func (c CloseCode) IsApplication() bool {
	return c >= 4000 && c < 5000
}

// Sendable reports whether c may be put in a close frame. 1004, 1005, 1006
// and 1015 are reserved for local reporting.
func (c CloseCode) Sendable() bool {
	switch c {
	case CloseReserved, CloseNoStatusReceived, CloseAbnormalClosure, CloseTLSHandshake:
		return false
	}
	return c.IsStandard() || c.IsPrivate() || c.IsApplication()
}

// String returns the code name.
func (c CloseCode) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CloseNormalClosure:
		return "NORMAL_CLOSURE"
	case CloseGoingAway:
		return "GOING_AWAY"
	case CloseProtocolError:
		return "PROTOCOL_ERROR"
	case CloseUnsupportedData:
		return "UNSUPPORTED_DATA"
	case CloseReserved:
		return "RESERVED"
	case CloseNoStatusReceived:
		return "NO_STATUS_RECEIVED"
	case CloseAbnormalClosure:
		return "ABNORMAL_CLOSURE"
	case CloseInvalidPayload:
		return "INVALID_PAYLOAD"
	case ClosePolicyViolation:
		return "POLICY_VIOLATION"
	case CloseMessageTooBig:
		return "MESSAGE_TOO_BIG"
	case CloseMandatoryExtension:
		return "MANDATORY_EXTENSION"
	case CloseInternalError:
		return "INTERNAL_ERROR"
	case CloseServiceRestart:
		return "SERVICE_RESTART"
	case CloseTryAgainLater:
		return "TRY_AGAIN_LATER"
	case CloseBadGateway:
		return "BAD_GATEWAY"
	case CloseTLSHandshake:
		return "TLS_HANDSHAKE"
	case CodeReconnecting:
		return "RECONNECTING"
	case CodeReconnected:
		return "RECONNECTED"
	case CodeRetriesExhausted:
		return "RETRIES_EXHAUSTED"
	case CodeQueueDrained:
		return "QUEUE_DRAINED"
	case CodePipelineFault:
		return "PIPELINE_FAULT"
	case CodeObserverFault:
		return "OBSERVER_FAULT"
	case CloseDoNotReconnect:
		return "DO_NOT_RECONNECT"
	case CloseInactivity:
		return "INACTIVITY"
	default:
		return fmt.Sprintf("CODE_%d", uint16(c))
	}
}
