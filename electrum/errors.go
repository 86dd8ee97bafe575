package electrum

import (
	"errors"

	"github.com/ABMatrix/electrs/jsonrpc"
)

// toRPCError maps a handler error to a JSON-RPC error: a DaemonError (the
// tagged-kind discriminator declared in collaborators.go) becomes code 2
// with the daemon's own message; anything else becomes code 1 with the
// error's display text.
func toRPCError(err error) *jsonrpc.Error {
	var daemonErr DaemonError
	if errors.As(err, &daemonErr) {
		return jsonrpc.Err(jsonrpc.DaemonError, daemonErr.DaemonMessage())
	}
	return jsonrpc.Err(jsonrpc.ApplicationError, err.Error())
}
