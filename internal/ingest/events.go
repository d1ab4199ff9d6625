package ingest

import (
	"fmt"
	"sort"

	"stacks-event-ingest/internal/bns"
	"stacks-event-ingest/internal/model"
)

// NormalizeEvents implements spec section 4.3.2: drop uncommitted events,
// scatter the rest into their owning transaction, stable-sort each
// transaction's events back into original event_index order, renumber
// 0..N-1, and set event_count. It also runs the BNS extractor over every
// contract-log belonging to a recognized BNS contract, appending any
// derived record to the owning transaction's Names.
//
// txs is mutated in place (by index, via the returned slice) and also
// returned for convenience. Returns a ReferenceMissing-kind error if an
// event names a tx_id absent from txs, per spec section 4.3.2 step 2
// ("missing owner tx is a fatal decode error").
func NormalizeEvents(txs []model.Transaction, events []model.Event, blockHeight uint32) ([]model.Transaction, error) {
	byTxID := make(map[string]int, len(txs))
	for i, t := range txs {
		byTxID[t.TxID] = i
	}

	buckets := make(map[string][]model.Event, len(txs))
	for _, ev := range events {
		if !ev.Committed {
			continue // P7: uncommitted events never appear in the store.
		}
		if _, ok := byTxID[ev.TxID]; !ok {
			return nil, Wrap(KindReferenceMissing, fmt.Errorf("event %d references unknown tx %s", ev.EventIndex, ev.TxID))
		}
		buckets[ev.TxID] = append(buckets[ev.TxID], ev)
	}

	for txID, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].EventIndex < bucket[j].EventIndex
		})

		idx := byTxID[txID]
		tx := txs[idx]
		normalized := make([]model.Event, len(bucket))
		for i, ev := range bucket {
			ev.EventIndex = i
			ev.TxIndex = tx.TxIndex
			ev.BlockHeight = blockHeight
			normalized[i] = ev

			if ev.Kind == model.EventSmartContractLog && bns.IsBNSContract(ev.ContractIdentifier) {
				rec, ok, err := bns.FromContractLog(ev, blockHeight)
				if err != nil {
					return nil, Wrap(KindDecode, err)
				}
				if ok {
					tx.Names = append(tx.Names, rec)
				}
			}
		}
		tx.Events = normalized
		tx.EventCount = len(normalized)
		txs[idx] = tx
	}

	// P6: a contract-call to name-renewal with no accompanying log (the
	// node omits it when the renewal carries no zonefile hash) still
	// produces a name record, synthesized from the call's own arguments.
	// Every transaction is checked, not just those with a bucket above,
	// since the no-log case means Events may be empty entirely.
	for idx, tx := range txs {
		rec, ok, err := bns.RenewalFallback(tx, blockHeight)
		if err != nil {
			return nil, Wrap(KindDecode, err)
		}
		if ok {
			tx.Names = append(tx.Names, rec)
			txs[idx] = tx
		}
	}

	return txs, nil
}
