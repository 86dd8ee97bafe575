package daemon

import (
	"errors"

	"github.com/btcsuite/btcd/btcjson"
)

// rpcError is the tagged-kind discriminator design note 9 calls for: it
// satisfies electrum.DaemonError so the dispatcher's error mapping can
// recognize an upstream bitcoind failure without a type switch, grounded
// on the *btcjson.RPCError checks in other retrieved bitcoind clients
// (e.g. lnd's bitcoind chain notifier: `jsonErr, ok := err.(*btcjson.RPCError)`).
type rpcError struct {
	inner *btcjson.RPCError
}

func (e *rpcError) Error() string { return e.inner.Message }

func (e *rpcError) DaemonMessage() string { return e.inner.Message }

// wrapDaemonErr classifies err: if its root cause is a bitcoind JSON-RPC
// error, it is wrapped as a rpcError (code-2 in the dispatcher); anything
// else (connection failures, our own argument errors) passes through
// untouched so it falls back to the generic code-1 mapping.
func wrapDaemonErr(err error) error {
	if err == nil {
		return nil
	}
	var jsonErr *btcjson.RPCError
	if errors.As(err, &jsonErr) {
		return &rpcError{inner: jsonErr}
	}
	return err
}
