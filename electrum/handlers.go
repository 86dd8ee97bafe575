package electrum

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// statusFor returns the client's existing status for sh, or builds a
// fresh one synchronously, without storing it in the client, as a
// read-path fallback for unsubscribed script-hashes: the wallet pays for
// an index read on every call instead of once at subscribe time, which is
// why it's logged.
func (d *Dispatcher) statusFor(ctx context.Context, client *Client, sh ScriptHash) (Status, error) {
	if status, ok := client.ScriptHashes[sh]; ok {
		return status, nil
	}
	if d.log != nil {
		d.log.Warnw("scripthash query without prior subscribe", "scripthash", sh.String())
	}
	status := d.tracker.NewStatus(sh)
	if _, err := d.tracker.UpdateScriptHashStatus(ctx, status, d.daemon, d.cache); err != nil {
		return nil, err
	}
	return status, nil
}

func (d *Dispatcher) scriptHashBalance(ctx context.Context, client *Client, sh ScriptHash) (any, error) {
	status, err := d.statusFor(ctx, client, sh)
	if err != nil {
		return nil, err
	}
	return status.Balance(), nil
}

func (d *Dispatcher) scriptHashHistory(ctx context.Context, client *Client, sh ScriptHash, from, to *uint32) (any, error) {
	status, err := d.statusFor(ctx, client, sh)
	if err != nil {
		return nil, err
	}
	history := status.GetHistory(from, to)
	if history == nil {
		history = []HistoryEntry{}
	}
	return history, nil
}

func (d *Dispatcher) scriptHashUnspent(ctx context.Context, client *Client, sh ScriptHash) (any, error) {
	status, err := d.statusFor(ctx, client, sh)
	if err != nil {
		return nil, err
	}
	unspent := status.Unspent()
	if unspent == nil {
		unspent = []UnspentEntry{}
	}
	return unspent, nil
}

func (d *Dispatcher) scriptHashSelectUnspent(ctx context.Context, client *Client, p ScriptHashSelectUnspentParams) (any, error) {
	status, err := d.statusFor(ctx, client, p.ScriptHash)
	if err != nil {
		return nil, err
	}
	selected := SelectUnspent(status.Unspent(), p.Amounts, p.MinAmount, p.Confirmed)
	if selected == nil {
		selected = []UnspentEntry{}
	}
	return selected, nil
}

// scriptHashUnspentExist is an O(n) membership scan over the current
// unspent set, since the wire contract gives no hint the tracker should
// index outpoints beyond what Unspent() already returns.
func (d *Dispatcher) scriptHashUnspentExist(ctx context.Context, client *Client, sh ScriptHash, txid chainhash.Hash) (any, error) {
	status, err := d.statusFor(ctx, client, sh)
	if err != nil {
		return nil, err
	}
	for _, u := range status.Unspent() {
		if u.TxHash.Hash() == txid {
			return true, nil
		}
	}
	return false, nil
}

func (d *Dispatcher) serverVersion(p VersionParams) (any, error) {
	version, ok := p.Proto.Negotiate()
	if !ok {
		return nil, fmt.Errorf("unsupported protocol version range [%s, %s]", p.Proto.Min, p.Proto.Max)
	}
	return [2]string{fmt.Sprintf("electrs/%s", d.serverVer), version}, nil
}

// ServerFeatures is the reply shape of server.features.
type ServerFeatures struct {
	GenesisHash   string         `json:"genesis_hash"`
	Hosts         map[string]any `json:"hosts"`
	ProtocolMax   string         `json:"protocol_max"`
	ProtocolMin   string         `json:"protocol_min"`
	Pruning       *string        `json:"pruning"`
	ServerVersion string         `json:"server_version"`
	HashFunction  string         `json:"hash_function"`
}

func (d *Dispatcher) serverFeatures() ServerFeatures {
	genesis := d.tracker.Chain().GetBlockHash(0)
	genesisHex := ""
	if genesis != nil {
		genesisHex = genesis.String()
	}
	return ServerFeatures{
		GenesisHash:   genesisHex,
		Hosts:         map[string]any{"tcp_port": d.tcpPort},
		ProtocolMax:   protocolVersion,
		ProtocolMin:   protocolVersion,
		Pruning:       nil,
		ServerVersion: fmt.Sprintf("electrs/%s", d.serverVer),
		HashFunction:  "sha256",
	}
}

func (d *Dispatcher) estimateFee(ctx context.Context, nblocks uint16) (any, error) {
	fee, err := d.daemon.EstimateFee(ctx, nblocks)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return -1.0, nil
	}
	return *fee, nil
}

func (d *Dispatcher) transactionBroadcast(ctx context.Context, rawHex string) (any, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex: %w", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	txid, err := d.daemon.Broadcast(ctx, raw)
	if err != nil {
		return nil, err
	}
	return NewHashHex(*txid), nil
}

func (d *Dispatcher) transactionGet(ctx context.Context, txid chainhash.Hash, verbose bool) (any, error) {
	if verbose {
		blockHash, _, _ := d.tracker.LookupTransaction(ctx, d.daemon, txid)
		return d.daemon.GetTransactionInfo(ctx, txid, blockHash)
	}

	if hexStr, ok := d.cache.GetTx(txid, hex.EncodeToString); ok {
		return hexStr, nil
	}

	_, raw, err := d.tracker.LookupTransaction(ctx, d.daemon, txid)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		d.cache.Put(txid, raw)
		return hex.EncodeToString(raw), nil
	}

	hexStr, err := d.daemon.GetTransactionHex(ctx, txid, nil)
	if err != nil {
		return nil, err
	}
	if raw, err := hex.DecodeString(hexStr); err == nil {
		d.cache.Put(txid, raw)
	}
	return hexStr, nil
}

// TransactionMerkleResult is the reply shape of blockchain.transaction.get_merkle.
type TransactionMerkleResult struct {
	BlockHeight int32    `json:"block_height"`
	Pos         int      `json:"pos"`
	Merkle      []string `json:"merkle"`
}

func (d *Dispatcher) transactionGetMerkle(ctx context.Context, txid chainhash.Hash, height uint32) (any, error) {
	blockHash := d.tracker.Chain().GetBlockHash(int32(height))
	if blockHash == nil {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	txids, err := d.daemon.GetBlockTxids(ctx, *blockHash)
	if err != nil {
		return nil, err
	}
	pos := indexOfTxid(txids, txid)
	if pos < 0 {
		return nil, fmt.Errorf("transaction %s not found in block at height %d", txid, height)
	}
	proof := d.merkle.Create(txids, pos)
	return TransactionMerkleResult{BlockHeight: int32(height), Pos: proof.Position(), Merkle: proof.ToHex()}, nil
}

// TransactionIDFromPosResult is the reply shape of blockchain.transaction.id_from_pos.
type TransactionIDFromPosResult struct {
	TxID   HashHex  `json:"tx_id"`
	Merkle []string `json:"merkle,omitempty"`
}

func (d *Dispatcher) transactionIDFromPos(ctx context.Context, height, pos uint32, withMerkle bool) (any, error) {
	blockHash := d.tracker.Chain().GetBlockHash(int32(height))
	if blockHash == nil {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	txids, err := d.daemon.GetBlockTxids(ctx, *blockHash)
	if err != nil {
		return nil, err
	}
	if int(pos) >= len(txids) {
		return nil, fmt.Errorf("position %d out of range for block at height %d (%d transactions)", pos, height, len(txids))
	}
	result := TransactionIDFromPosResult{TxID: NewHashHex(txids[pos])}
	if withMerkle {
		proof := d.merkle.Create(txids, int(pos))
		result.Merkle = proof.ToHex()
	}
	return result, nil
}

func indexOfTxid(txids []chainhash.Hash, target chainhash.Hash) int {
	for i, t := range txids {
		if t == target {
			return i
		}
	}
	return -1
}
