package connection

import "github.com/resock/resock-go/pkg/wire"

// terminalCodes are the close codes after which no reconnect is attempted.
// Every other code, including unknown ones, is assumed transient.
var terminalCodes = map[wire.CloseCode]struct{}{
	wire.CloseNormalClosure:   {},
	wire.CloseUnsupportedData: {},
	wire.ClosePolicyViolation: {},
	wire.CloseMessageTooBig:   {},
	wire.CloseInternalError:   {},
	wire.CloseDoNotReconnect:  {},
}

// IsReconnectEligible reports whether a transport closed with code may be
// reconnected.
func IsReconnectEligible(code wire.CloseCode) bool {
	_, terminal := terminalCodes[code]
	return !terminal
}
