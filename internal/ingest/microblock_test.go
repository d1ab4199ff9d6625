package ingest

import (
	"testing"

	"stacks-event-ingest/internal/model"
)

func TestReconstructMicroblocksGroupsBySequence(t *testing.T) {
	txs := []model.Transaction{
		{TxID: "t1", MicroblockHash: "mb-0", MicroblockSequence: 0},
		{TxID: "t2", MicroblockHash: "mb-0", MicroblockSequence: 0},
		{TxID: "t3", MicroblockHash: "mb-1", MicroblockSequence: 1},
		{TxID: "t4"}, // anchor-confirmed directly, no microblock
	}

	mbs, gaps := ReconstructMicroblocks(txs)
	if len(mbs) != 2 {
		t.Fatalf("expected 2 microblocks, got %d", len(mbs))
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %v", gaps)
	}
	if mbs[0].MicroblockSequence != 0 || mbs[1].MicroblockSequence != 1 {
		t.Fatalf("expected sequences in order, got %+v", mbs)
	}
}

func TestReconstructMicroblocksToleratesGaps(t *testing.T) {
	txs := []model.Transaction{
		{TxID: "t1", MicroblockHash: "mb-0", MicroblockSequence: 0},
		{TxID: "t2", MicroblockHash: "mb-2", MicroblockSequence: 2},
	}

	mbs, gaps := ReconstructMicroblocks(txs)
	if len(mbs) != 2 {
		t.Fatalf("expected 2 microblocks despite gap, got %d", len(mbs))
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap warning, got %v", gaps)
	}
}
