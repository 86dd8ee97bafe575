package electrum

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// maxHeadersPerCall is the blockchain.block.headers count cap.
const maxHeadersPerCall = 2016

// HeaderNotification is the {hex, height} shape shared by headers.subscribe's
// reply and its notification.
type HeaderNotification struct {
	Hex    string `json:"hex"`
	Height int32  `json:"height"`
}

func headerParams(header *wire.BlockHeader, height int32) HeaderNotification {
	return HeaderNotification{Hex: encodeHeader(header), Height: height}
}

func encodeHeader(header *wire.BlockHeader) string {
	var buf bytes.Buffer
	buf.Grow(80)
	if err := header.Serialize(&buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf.Bytes())
}

// blockHeader builds the reply of blockchain.block.header: a bare hex
// string.
func (d *Dispatcher) blockHeader(height uint32) (string, error) {
	tipHeight := d.tracker.Chain().Height()
	if int64(height) > int64(tipHeight) {
		return "", fmt.Errorf("height %d past tip %d", height, tipHeight)
	}
	header := d.tracker.Chain().GetBlockHeader(int32(height))
	if header == nil {
		return "", fmt.Errorf("no header at height %d", height)
	}
	return encodeHeader(header), nil
}

// BlockHeadersResult is the reply shape of blockchain.block.headers.
type BlockHeadersResult struct {
	Count int    `json:"count"`
	Hex   string `json:"hex"`
	Max   int    `json:"max"`
}

func (d *Dispatcher) blockHeaders(start, count uint32) BlockHeadersResult {
	if count > maxHeadersPerCall {
		count = maxHeadersPerCall
	}
	tipHeight := d.tracker.Chain().Height()
	end := start + count
	if limit := uint32(tipHeight) + 1; end > limit {
		end = limit
	}
	var buf bytes.Buffer
	n := 0
	for h := start; h < end; h++ {
		header := d.tracker.Chain().GetBlockHeader(int32(h))
		if header == nil {
			break
		}
		header.Serialize(&buf)
		n++
	}
	return BlockHeadersResult{Count: n, Hex: hex.EncodeToString(buf.Bytes()), Max: maxHeadersPerCall}
}

func (d *Dispatcher) headersSubscribe(client *Client) HeaderNotification {
	tip := d.tracker.Chain().Tip()
	client.Tip = &tip
	height := d.tracker.Chain().Height()
	header := d.tracker.Chain().GetBlockHeader(height)
	return headerParams(header, height)
}
