package electrum

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/ABMatrix/electrs/jsonrpc"
)

// SubscribeResult is one element of a batched subscribe's per-input
// result: either the script-hash's current status hash, or the error
// that occurred building it.
type SubscribeResult struct {
	StatusHash *StatusHash
	Err        error
}

// SubscribeBatch is the batched-subscribe entry point:
//
//  1. compute the subset of scripthashes not yet in client.ScriptHashes;
//  2. build fresh statuses for all of them in parallel, each an
//     independent read-only-from-index operation;
//  3. return, in input order, the status hash of either the pre-existing
//     or newly built status — a build failure only fails its own index.
//
// The single-subscribe handler is this with a one-element slice.
func (d *Dispatcher) SubscribeBatch(ctx context.Context, client *Client, scriptHashes []ScriptHash) []SubscribeResult {
	type built struct {
		status Status
		err    error
	}
	var fresh []ScriptHash
	freshResults := make(map[ScriptHash]*built)
	for _, sh := range scriptHashes {
		if _, exists := client.ScriptHashes[sh]; !exists {
			if _, queued := freshResults[sh]; !queued {
				freshResults[sh] = nil
				fresh = append(fresh, sh)
			}
		}
	}

	if len(fresh) > 0 {
		// Each worker writes only its own slot; the map is filled after Wait.
		builds := make([]built, len(fresh))
		p := pool.New().WithMaxGoroutines(maxFanOut)
		for i, sh := range fresh {
			i, sh := i, sh
			p.Go(func() {
				status := d.tracker.NewStatus(sh)
				_, err := d.tracker.UpdateScriptHashStatus(ctx, status, d.daemon, d.cache)
				builds[i] = built{status: status, err: err}
			})
		}
		p.Wait()
		for i, sh := range fresh {
			freshResults[sh] = &builds[i]
		}
	}

	out := make([]SubscribeResult, len(scriptHashes))
	for i, sh := range scriptHashes {
		if existing, ok := client.ScriptHashes[sh]; ok {
			out[i] = SubscribeResult{StatusHash: existing.StatusHash()}
			continue
		}
		b := freshResults[sh]
		if b.err != nil {
			out[i] = SubscribeResult{Err: fmt.Errorf("subscribing to %s: %w", sh, b.err)}
			continue
		}
		client.ScriptHashes[sh] = b.status
		out[i] = SubscribeResult{StatusHash: b.status.StatusHash()}
	}
	return out
}

// Unsubscribe removes sh from the client's subscriptions and reports
// whether it had been subscribed.
func (d *Dispatcher) Unsubscribe(client *Client, sh ScriptHash) bool {
	if _, ok := client.ScriptHashes[sh]; !ok {
		return false
	}
	delete(client.ScriptHashes, sh)
	return true
}

// UpdateClient is the periodic re-evaluation entry point: every
// subscribed status is refreshed in parallel against the tracker, and a
// scripthash.subscribe notification is emitted for each one whose status
// hash changed; then, if the client has ever called headers.subscribe, a
// headers.subscribe notification is emitted exactly when the chain tip
// has moved. Script-hash notifications always precede the headers
// notification.
//
// Any failure updating a single subscription is fatal for the whole
// call: the notifier is expected to drop the client.
func (d *Dispatcher) UpdateClient(ctx context.Context, client *Client) ([][]byte, error) {
	type outcome struct {
		sh      ScriptHash
		changed bool
		hash    *StatusHash
		err     error
	}
	outcomes := make([]outcome, 0, len(client.ScriptHashes))
	results := make(chan outcome, len(client.ScriptHashes))

	p := pool.New().WithMaxGoroutines(maxFanOut)
	for sh, st := range client.ScriptHashes {
		sh, st := sh, st
		p.Go(func() {
			result, err := d.tracker.UpdateScriptHashStatus(ctx, st, d.daemon, d.cache)
			results <- outcome{sh: sh, changed: result == Changed, hash: st.StatusHash(), err: err}
		})
	}
	p.Wait()
	close(results)
	for o := range results {
		if o.err != nil {
			return nil, fmt.Errorf("failed to update status for %s: %w", o.sh, o.err)
		}
		outcomes = append(outcomes, o)
	}

	notifications := make([][]byte, 0, len(outcomes)+1)
	for _, o := range outcomes {
		if !o.changed {
			continue
		}
		var hash any
		if o.hash != nil {
			hash = NewHashHex(*o.hash)
		}
		line, err := jsonrpc.Encode(jsonrpc.NewNotification(MethodScriptHashSubscribe, []any{o.sh, hash}))
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, line)
	}

	if client.Tip != nil {
		newTip := d.tracker.Chain().Tip()
		if *client.Tip != newTip {
			client.Tip = &newTip
			height := d.tracker.Chain().Height()
			header := d.tracker.Chain().GetBlockHeader(height)
			line, err := jsonrpc.Encode(jsonrpc.NewNotification(MethodHeadersSubscribe, []any{headerParams(header, height)}))
			if err != nil {
				return nil, err
			}
			notifications = append(notifications, line)
		}
	}

	return notifications, nil
}

// maxFanOut bounds the worker pool used for subscribe/update fan-out.
const maxFanOut = 32
