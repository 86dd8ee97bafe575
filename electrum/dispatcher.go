package electrum

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ABMatrix/electrs/jsonrpc"
	"github.com/ABMatrix/electrs/utils"
)

// Dispatcher is the routing, readiness-gating and response-assembling
// component. It holds every shared, read-mostly collaborator: the
// tracker, daemon, cache and merkle builder are safe for concurrent use
// by many clients at once.
type Dispatcher struct {
	tracker  Tracker
	daemon   Daemon
	cache    Cache
	merkle   MerkleBuilder
	duration jsonrpc.DurationReporter
	log      utils.SimpleLogger

	banner       string
	tcpPort      uint16
	serverVer    string
	serverBanner func() string
}

// NewDispatcher wires the collaborators into a Dispatcher. banner is read
// on every server.banner call, letting callers
// rotate it (e.g. from a config file) without restarting.
func NewDispatcher(tracker Tracker, daemon Daemon, cache Cache, merkle MerkleBuilder, duration jsonrpc.DurationReporter, log utils.SimpleLogger, version string, tcpPort uint16, banner func() string) *Dispatcher {
	return &Dispatcher{
		tracker:      tracker,
		daemon:       daemon,
		cache:        cache,
		merkle:       merkle,
		duration:     duration,
		log:          log,
		serverVer:    version,
		tcpPort:      tcpPort,
		serverBanner: banner,
	}
}

// HandleRequests is the dispatcher entry point: len(output) == len(input)
// always holds, and per-call failures never abort sibling calls within
// the same batch.
func (d *Dispatcher) HandleRequests(ctx context.Context, client *Client, lines [][]byte) [][]byte {
	out := make([][]byte, len(lines))
	for i, line := range lines {
		out[i] = d.handleLine(ctx, client, line)
	}
	return out
}

func (d *Dispatcher) handleLine(ctx context.Context, client *Client, line []byte) []byte {
	reqs, frameErr := jsonrpc.DecodeLine(line)
	if frameErr != nil {
		encoded, _ := jsonrpc.Encode(frameErr)
		return encoded
	}

	// A one-element array is still a batch and is answered with an array.
	if len(reqs) == 1 && bytes.TrimLeft(line, " \t\r\n")[0] != '[' {
		resp := d.dispatchSingle(ctx, client, reqs[0])
		encoded, _ := jsonrpc.Encode(resp)
		return encoded
	}

	responses := d.dispatchBatch(ctx, client, reqs)
	encoded, _ := jsonrpc.EncodeBatch(responses)
	return encoded
}

// dispatchBatch implements the batched fast path: a batch consisting
// solely of successfully-parsed blockchain.scripthash.subscribe calls is
// served by one parallel SubscribeBatch instead of n independent calls.
// The two paths must stay response-equivalent.
func (d *Dispatcher) dispatchBatch(ctx context.Context, client *Client, reqs []jsonrpc.Request) []*jsonrpc.Response {
	type parsed struct {
		req jsonrpc.Request
		pc  ParsedCall
		err *jsonrpc.Error
	}
	calls := make([]parsed, len(reqs))
	allSubscribe := len(reqs) > 0
	for i, req := range reqs {
		pc, perr := ParseParams(req.Method, req.Params)
		calls[i] = parsed{req: req, pc: pc, err: perr}
		if perr != nil || pc.Method != MethodScriptHashSubscribe {
			allSubscribe = false
		}
	}

	responses := make([]*jsonrpc.Response, len(reqs))

	if !allSubscribe {
		for i, c := range calls {
			responses[i] = d.dispatchParsed(ctx, client, c.req, c.pc, c.err)
		}
		return responses
	}

	if err := d.tracker.Ready(); err != nil {
		for i, c := range calls {
			responses[i] = jsonrpc.ErrorResponse(c.req.ID, jsonrpc.Err(jsonrpc.UnavailableIndex, "unavailable index"))
		}
		return responses
	}

	start := time.Now()
	scriptHashes := make([]ScriptHash, len(calls))
	for i, c := range calls {
		scriptHashes[i] = c.pc.Params.(ScriptHashParams).ScriptHash
	}
	results := d.SubscribeBatch(ctx, client, scriptHashes)
	for i, r := range results {
		if r.Err != nil {
			responses[i] = jsonrpc.ErrorResponse(calls[i].req.ID, toRPCError(r.Err))
			continue
		}
		responses[i] = jsonrpc.ResultResponse(calls[i].req.ID, hashHexOrNull(r.StatusHash))
	}
	d.observe(multiCallLabel, start)
	return responses
}

func (d *Dispatcher) dispatchSingle(ctx context.Context, client *Client, req jsonrpc.Request) *jsonrpc.Response {
	pc, perr := ParseParams(req.Method, req.Params)
	return d.dispatchParsed(ctx, client, req, pc, perr)
}

func (d *Dispatcher) dispatchParsed(ctx context.Context, client *Client, req jsonrpc.Request, pc ParsedCall, perr *jsonrpc.Error) *jsonrpc.Response {
	if perr != nil {
		return jsonrpc.ErrorResponse(req.ID, perr)
	}

	if err := d.tracker.Ready(); err != nil && !readinessAllowlist[pc.Method] {
		return jsonrpc.ErrorResponse(req.ID, jsonrpc.Err(jsonrpc.UnavailableIndex, "unavailable index"))
	}

	handler := jsonrpc.CallHandler(func(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
		result, err := d.execute(ctx, client, pc)
		if err != nil {
			if d.log != nil {
				d.log.Warnw("rpc call failed", "method", pc.Method, "error", err)
			}
			return jsonrpc.ErrorResponse(req.ID, toRPCError(err))
		}
		return jsonrpc.ResultResponse(req.ID, result)
	})
	if d.duration != nil {
		handler = jsonrpc.Chain(handler, jsonrpc.MetricsMiddleware(d.duration, func(r jsonrpc.Request) string { return r.Method }))
	}
	return handler(ctx, req)
}

// execute routes a parsed call to its handler. Every handler returns
// (any, error); the any must already be in its wire shape (so plain
// values, not pointers-to-pointers) ready for json.Marshal.
func (d *Dispatcher) execute(ctx context.Context, client *Client, pc ParsedCall) (any, error) {
	switch pc.Method {
	case MethodServerBanner:
		return d.serverBanner(), nil
	case MethodServerDonationAddress:
		return nil, nil
	case MethodServerFeatures:
		return d.serverFeatures(), nil
	case MethodServerPeersSubscribe:
		return []any{}, nil
	case MethodServerPing:
		return nil, nil
	case MethodServerVersion:
		return d.serverVersion(pc.Params.(VersionParams))
	case MethodBlockHeader:
		return d.blockHeader(pc.Params.(BlockHeaderParams).Height)
	case MethodBlockHeaders:
		p := pc.Params.(BlockHeadersParams)
		return d.blockHeaders(p.Start, p.Count), nil
	case MethodEstimateFee:
		return d.estimateFee(ctx, pc.Params.(EstimateFeeParams).NBlocks)
	case MethodRelayFee:
		return d.daemon.GetRelayFee(ctx)
	case MethodHeadersSubscribe:
		return d.headersSubscribe(client), nil
	case MethodScriptHashGetBalance:
		return d.scriptHashBalance(ctx, client, pc.Params.(ScriptHashParams).ScriptHash)
	case MethodScriptHashGetHistory:
		return d.scriptHashHistory(ctx, client, pc.Params.(ScriptHashParams).ScriptHash, nil, nil)
	case MethodScriptHashGetHistoryFltr:
		p := pc.Params.(ScriptHashHistoryFilterParams)
		return d.scriptHashHistory(ctx, client, p.ScriptHash, p.From, p.To)
	case MethodScriptHashListUnspent:
		return d.scriptHashUnspent(ctx, client, pc.Params.(ScriptHashParams).ScriptHash)
	case MethodScriptHashSelectUnspent:
		p := pc.Params.(ScriptHashSelectUnspentParams)
		return d.scriptHashSelectUnspent(ctx, client, p)
	case MethodScriptHashUnspentExist:
		p := pc.Params.(ScriptHashUnspentExistParams)
		return d.scriptHashUnspentExist(ctx, client, p.ScriptHash, p.Txid)
	case MethodScriptHashSubscribe:
		results := d.SubscribeBatch(ctx, client, []ScriptHash{pc.Params.(ScriptHashParams).ScriptHash})
		if results[0].Err != nil {
			return nil, results[0].Err
		}
		return hashHexOrNull(results[0].StatusHash), nil
	case MethodScriptHashUnsubscribe:
		return d.Unsubscribe(client, pc.Params.(ScriptHashParams).ScriptHash), nil
	case MethodTransactionBroadcast:
		return d.transactionBroadcast(ctx, pc.Params.(TransactionBroadcastParams).Hex)
	case MethodTransactionGet:
		p := pc.Params.(TransactionGetParams)
		return d.transactionGet(ctx, p.Txid, p.Verbose)
	case MethodTransactionGetMerkle:
		p := pc.Params.(TransactionGetMerkleParams)
		return d.transactionGetMerkle(ctx, p.Txid, p.Height)
	case MethodTransactionIDFromPos:
		p := pc.Params.(TransactionIDFromPosParams)
		return d.transactionIDFromPos(ctx, p.Height, p.Pos, p.Merkle)
	case MethodMempoolFeeHistogram:
		return d.tracker.FeesHistogram(), nil
	default:
		return nil, fmt.Errorf("unhandled method %s", pc.Method)
	}
}

func (d *Dispatcher) observe(label string, start time.Time) {
	if d.duration == nil {
		return
	}
	d.duration.Observe(label, time.Since(start).Seconds())
}

// hashHexOrNull converts a possibly-nil *chainhash.Hash into its wire form:
// nil stays nil (an empty status hash), otherwise the reversed-hex
// encoding via HashHex.
func hashHexOrNull(h *StatusHash) any {
	if h == nil {
		return nil
	}
	return NewHashHex(*h)
}
