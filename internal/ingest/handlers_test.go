package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"

	"stacks-event-ingest/internal/eventstore"
)

// buildCoinbaseTx constructs a minimal raw coinbase transaction.
func buildCoinbaseTx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	buf.Write([]byte{0x00, 0x00, 0x00, 0x01})
	buf.WriteByte(0x04) // standard auth
	buf.WriteByte(0x01) // hash mode
	buf.Write(bytes.Repeat([]byte{0xAB}, 20))
	nonceBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBuf, 1)
	buf.Write(nonceBuf)
	feeBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(feeBuf, 1)
	buf.Write(feeBuf)
	buf.WriteByte(0x03)
	buf.WriteByte(0x01)
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00}) // zero post conditions
	buf.WriteByte(0x04)                       // TxPayloadCoinbase
	buf.Write(bytes.Repeat([]byte{0x00}, 32))
	return buf.Bytes()
}

// TestNewBlockScenario1 is spec section 8 scenario 1: one coinbase tx, zero
// events -> store has one block, one tx, zero events, tx.event_count=0.
func TestNewBlockScenario1(t *testing.T) {
	store := eventstore.NewMemStore()
	h := New(store, nil)

	raw := buildCoinbaseTx(t)
	body, _ := json.Marshal(map[string]interface{}{
		"block_hash":        "0xblock1",
		"index_block_hash":  "0xibh1",
		"block_height":      1,
		"burn_block_height": 1,
		"transactions": []map[string]interface{}{
			{"txid": "0xtx1", "raw_tx": "0x" + hex.EncodeToString(raw), "tx_index": 0, "status": "success"},
		},
		"events": []interface{}{},
	})

	if err := h.NewBlock(context.Background(), body); err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	if len(store.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(store.Blocks))
	}
	if len(store.Transactions) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(store.Transactions))
	}
	tx := store.Transactions["0xtx1"]
	if tx.EventCount != 0 || len(tx.Events) != 0 {
		t.Fatalf("expected zero events, got %+v", tx)
	}
}

// TestMempoolIdempotence is P4/scenario 3: submitting the same
// new_mempool_tx payload N times yields the same final state.
func TestMempoolIdempotence(t *testing.T) {
	store := eventstore.NewMemStore()
	h := New(store, nil)

	raw := buildCoinbaseTx(t)
	body, _ := json.Marshal([]string{"0x" + hex.EncodeToString(raw)})

	for i := 0; i < 2; i++ {
		if err := h.NewMempoolTx(context.Background(), body); err != nil {
			t.Fatalf("NewMempoolTx failed on iteration %d: %v", i, err)
		}
	}

	if len(store.MempoolTxs) != 1 {
		t.Fatalf("expected exactly one mempool row, got %d", len(store.MempoolTxs))
	}
}

// TestDropMempoolTxReasonMapping is scenario 4 on a single seeded row:
// reason=ReplaceByFee moves the dropped row to status ReplaceByFee.
func TestDropMempoolTxReasonMapping(t *testing.T) {
	store := eventstore.NewMemStore()
	h := New(store, nil)

	raw := buildCoinbaseTx(t)
	rawHex := "0x" + hex.EncodeToString(raw)
	body, _ := json.Marshal([]string{rawHex})
	if err := h.NewMempoolTx(context.Background(), body); err != nil {
		t.Fatalf("seed mempool tx failed: %v", err)
	}

	var txID string
	for id := range store.MempoolTxs {
		txID = id
	}

	dropBody, _ := json.Marshal(map[string]interface{}{
		"txids":  []string{txID},
		"reason": "ReplaceByFee",
	})
	if err := h.DropMempoolTx(context.Background(), dropBody); err != nil {
		t.Fatalf("DropMempoolTx failed: %v", err)
	}

	got := store.MempoolTxs[txID]
	if !got.Pruned || string(got.Status) != "ReplaceByFee" {
		t.Fatalf("expected pruned with ReplaceByFee status, got %+v", got)
	}
}

// TestNewBurnBlockIndexing is scenario 5: two reward_recipients and three
// reward_slot_holders -> reward_index in {0,1}, slot_index in {0,1,2}.
func TestNewBurnBlockIndexing(t *testing.T) {
	store := eventstore.NewMemStore()
	h := New(store, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"burn_block_hash":   "0xburn1",
		"burn_block_height": 100,
		"reward_recipients": []map[string]string{
			{"reward_recipient": "addr1", "reward_amount": "1000"},
			{"reward_recipient": "addr2", "reward_amount": "2000"},
		},
		"reward_slot_holders": []map[string]string{
			{"address": "addr1"},
			{"address": "addr2"},
			{"address": "addr3"},
		},
	})

	if err := h.NewBurnBlock(context.Background(), body); err != nil {
		t.Fatalf("NewBurnBlock failed: %v", err)
	}

	if len(store.BurnchainRewards) != 2 {
		t.Fatalf("expected 2 reward rows, got %d", len(store.BurnchainRewards))
	}
	for i, r := range store.BurnchainRewards {
		if r.RewardIndex != i {
			t.Fatalf("expected reward_index %d, got %d", i, r.RewardIndex)
		}
	}
	if len(store.SlotHolders) != 3 {
		t.Fatalf("expected 3 slot holder rows, got %d", len(store.SlotHolders))
	}
	for i, s := range store.SlotHolders {
		if s.SlotIndex != i {
			t.Fatalf("expected slot_index %d, got %d", i, s.SlotIndex)
		}
	}
}

func TestDropMempoolTxUnknownReasonMapsGeneric(t *testing.T) {
	if got := mapDropReason("SomethingNew"); got != "Dropped" {
		t.Fatalf("expected unknown reason to map to Dropped, got %v", got)
	}
}
