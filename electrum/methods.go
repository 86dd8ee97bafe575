package electrum

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-playground/validator/v10"

	"github.com/ABMatrix/electrs/jsonrpc"
	"github.com/ABMatrix/electrs/utils"
)

// validate applies the struct tags below to parsed parameters before they
// reach a handler.
var validate = validator.New()

// Method names, the closed catalog the dispatcher routes on.
const (
	MethodServerBanner             = "server.banner"
	MethodServerDonationAddress    = "server.donation_address"
	MethodServerFeatures           = "server.features"
	MethodServerPeersSubscribe     = "server.peers.subscribe"
	MethodServerPing               = "server.ping"
	MethodServerVersion            = "server.version"
	MethodBlockHeader              = "blockchain.block.header"
	MethodBlockHeaders             = "blockchain.block.headers"
	MethodEstimateFee              = "blockchain.estimatefee"
	MethodHeadersSubscribe         = "blockchain.headers.subscribe"
	MethodRelayFee                 = "blockchain.relayfee"
	MethodScriptHashGetBalance     = "blockchain.scripthash.get_balance"
	MethodScriptHashGetHistory     = "blockchain.scripthash.get_history"
	MethodScriptHashGetHistoryFltr = "blockchain.scripthash.get_history_filter"
	MethodScriptHashListUnspent    = "blockchain.scripthash.listunspent"
	MethodScriptHashSelectUnspent  = "blockchain.scripthash.select_unspent"
	MethodScriptHashUnspentExist   = "blockchain.scripthash.unspent_exist"
	MethodScriptHashSubscribe      = "blockchain.scripthash.subscribe"
	MethodScriptHashUnsubscribe    = "blockchain.scripthash.unsubscribe"
	MethodTransactionBroadcast     = "blockchain.transaction.broadcast"
	MethodTransactionGet           = "blockchain.transaction.get"
	MethodTransactionGetMerkle     = "blockchain.transaction.get_merkle"
	MethodTransactionIDFromPos     = "blockchain.transaction.id_from_pos"
	MethodMempoolFeeHistogram      = "mempool.get_fee_histogram"

	// multiCallLabel is the metrics label for the batched-subscribe fast
	// path.
	multiCallLabel = "blockchain.scripthash.subscribe:multi"
)

// readinessAllowlist is the set of methods permitted while the index is
// not ready.
var readinessAllowlist = map[string]bool{
	MethodBlockHeader:      true,
	MethodBlockHeaders:     true,
	MethodHeadersSubscribe: true,
	MethodServerVersion:    true,
}

// ProtocolVersion decodes either a bare version string or a [min, max]
// range, matching server.version's params shape.
type ProtocolVersion struct {
	Min, Max string
}

func (v *ProtocolVersion) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		v.Min, v.Max = single, single
		return nil
	}
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid protocol version %s", data)
	}
	v.Min, v.Max = pair[0], pair[1]
	return nil
}

// Negotiate returns the single version this server supports (1.4) if it
// falls within [Min, Max] (or equals the bare value), else false.
func (v ProtocolVersion) Negotiate() (string, bool) {
	if v.Min == protocolVersion || v.Max == protocolVersion || (v.Min <= protocolVersion && protocolVersion <= v.Max) {
		return protocolVersion, true
	}
	return "", false
}

const protocolVersion = "1.4"

type VersionParams struct {
	ClientID string
	Proto    ProtocolVersion
}

type BlockHeaderParams struct{ Height uint32 }
type BlockHeadersParams struct {
	Start uint32
	Count uint32
}
type EstimateFeeParams struct {
	NBlocks uint16 `validate:"gte=1"`
}

type ScriptHashParams struct{ ScriptHash ScriptHash }

type ScriptHashHistoryFilterParams struct {
	ScriptHash ScriptHash
	From       *uint32
	To         *uint32
}

type ScriptHashSelectUnspentParams struct {
	ScriptHash ScriptHash
	Amounts    []uint64
	MinAmount  uint64
	Confirmed  bool
}

type ScriptHashUnspentExistParams struct {
	ScriptHash ScriptHash
	Txid       chainhash.Hash
}

type TransactionBroadcastParams struct {
	Hex string `validate:"required,hexadecimal"`
}

type TransactionGetParams struct {
	Txid    chainhash.Hash
	Verbose bool
}

type TransactionGetMerkleParams struct {
	Txid   chainhash.Hash
	Height uint32
}

type TransactionIDFromPosParams struct {
	Height uint32
	Pos    uint32
	Merkle bool
}

// ParsedCall is a successfully parsed (method, typed-params) pair, minus
// id which the caller tracks separately.
type ParsedCall struct {
	Method string
	Params any
}

// ParseParams is the total function from (method, raw params array) to a
// typed parameter variant, routed through the method catalog above.
// Unknown methods and malformed params are the only two ways it fails,
// and they are distinguishable (-32601 vs -32602).
func ParseParams(method string, raw json.RawMessage) (ParsedCall, *jsonrpc.Error) {
	args, err := decodeArray(raw)
	if err != nil {
		return ParsedCall{}, jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
	}

	switch method {
	case MethodServerBanner, MethodServerDonationAddress, MethodServerFeatures,
		MethodServerPeersSubscribe, MethodServerPing, MethodHeadersSubscribe,
		MethodRelayFee, MethodMempoolFeeHistogram:
		return ParsedCall{Method: method, Params: struct{}{}}, nil

	case MethodServerVersion:
		var p VersionParams
		if len(args) != 2 {
			return invalidParams(method, "expected [client_id, proto]")
		}
		if err := json.Unmarshal(args[0], &p.ClientID); err != nil {
			return invalidParams(method, err.Error())
		}
		if err := json.Unmarshal(args[1], &p.Proto); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodBlockHeader:
		var p BlockHeaderParams
		if err := decodeTuple(args, &p.Height); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodBlockHeaders:
		var p BlockHeadersParams
		if err := decodeTuple(args, &p.Start, &p.Count); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodEstimateFee:
		var p EstimateFeeParams
		if err := decodeTuple(args, &p.NBlocks); err != nil {
			return invalidParams(method, err.Error())
		}
		if err := validate.Struct(p); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodScriptHashGetBalance, MethodScriptHashGetHistory, MethodScriptHashListUnspent:
		var p ScriptHashParams
		if err := decodeTuple(args, &p.ScriptHash); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodScriptHashGetHistoryFltr:
		if len(args) < 1 || len(args) > 3 {
			return invalidParams(method, "expected [scripthash, from?, to?]")
		}
		var p ScriptHashHistoryFilterParams
		if err := json.Unmarshal(args[0], &p.ScriptHash); err != nil {
			return invalidParams(method, err.Error())
		}
		if len(args) > 1 && string(args[1]) != "null" {
			var from uint32
			if err := json.Unmarshal(args[1], &from); err != nil {
				return invalidParams(method, err.Error())
			}
			p.From = utils.Ptr(from)
		}
		if len(args) > 2 && string(args[2]) != "null" {
			var to uint32
			if err := json.Unmarshal(args[2], &to); err != nil {
				return invalidParams(method, err.Error())
			}
			p.To = utils.Ptr(to)
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodScriptHashSelectUnspent:
		var p ScriptHashSelectUnspentParams
		if err := decodeTuple(args, &p.ScriptHash, &p.Amounts, &p.MinAmount, &p.Confirmed); err != nil {
			return invalidParams(method, err.Error())
		}
		if err := validate.Struct(p); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodScriptHashUnspentExist:
		var p ScriptHashUnspentExistParams
		if err := decodeTuple(args, &p.ScriptHash, &p.Txid); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodScriptHashSubscribe, MethodScriptHashUnsubscribe:
		var p ScriptHashParams
		if err := decodeTuple(args, &p.ScriptHash); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodTransactionBroadcast:
		var p TransactionBroadcastParams
		if err := decodeTuple(args, &p.Hex); err != nil {
			return invalidParams(method, err.Error())
		}
		if err := validate.Struct(p); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodTransactionGet:
		if len(args) < 1 || len(args) > 2 {
			return invalidParams(method, "expected [txid] or [txid, verbose]")
		}
		var p TransactionGetParams
		if err := unmarshalParam(args[0], &p.Txid); err != nil {
			return invalidParams(method, err.Error())
		}
		if len(args) == 2 {
			if err := json.Unmarshal(args[1], &p.Verbose); err != nil {
				return invalidParams(method, err.Error())
			}
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodTransactionGetMerkle:
		var p TransactionGetMerkleParams
		if err := decodeTuple(args, &p.Txid, &p.Height); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	case MethodTransactionIDFromPos:
		var p TransactionIDFromPosParams
		if err := decodeTuple(args, &p.Height, &p.Pos, &p.Merkle); err != nil {
			return invalidParams(method, err.Error())
		}
		return ParsedCall{Method: method, Params: p}, nil

	default:
		return ParsedCall{}, jsonrpc.Err(jsonrpc.MethodNotFound, "method not found")
	}
}

func invalidParams(method, detail string) (ParsedCall, *jsonrpc.Error) {
	return ParsedCall{}, jsonrpc.Err(jsonrpc.InvalidParams, fmt.Sprintf("invalid params for %s: %s", method, detail))
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("params must be an array: %w", err)
	}
	return args, nil
}

// decodeTuple unmarshals args positionally into dsts, failing if the
// count doesn't match exactly.
func decodeTuple(args []json.RawMessage, dsts ...any) error {
	if len(args) != len(dsts) {
		return fmt.Errorf("expected %d params, got %d", len(dsts), len(args))
	}
	for i, dst := range dsts {
		if err := unmarshalParam(args[i], dst); err != nil {
			return err
		}
	}
	return nil
}

// unmarshalParam decodes a single positional param, special-casing
// chainhash.Hash (txid/block hash) since it doesn't implement
// json.Unmarshaler itself — it's a plain [32]byte array type upstream.
func unmarshalParam(raw json.RawMessage, dst any) error {
	if h, ok := dst.(*chainhash.Hash); ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		parsed, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return err
		}
		*h = *parsed
		return nil
	}
	return json.Unmarshal(raw, dst)
}
