// Package eventstore defines the storage interface updates flow through
// (spec section 4.7) and its Postgres-backed implementation, plus the
// append-only raw event log used for export/replay (spec section 4.6).
package eventstore

import (
	"context"

	"stacks-event-ingest/internal/model"
)

// BlockUpdate is the fully-normalized bundle a message handler hands to the
// store for one anchor block: the block itself, its transactions (already
// event-index normalized), any matured miner rewards, and derived BNS
// records. The store commits a bundle atomically (spec section 4.7, 4.3).
//
// The handler does not tell the store which earlier blocks a reorg
// supersedes — the store works that out itself by comparing Block's
// parentage against the chain it already holds (spec section 4.7: "the
// store implements the reorg algorithm").
type BlockUpdate struct {
	Block        model.Block
	Transactions []model.Transaction
	Microblocks  []model.Microblock // confirmed by this anchor block (spec section 4.3.1)
	MinerRewards []model.MinerReward
}

// MicroblockUpdate bundles one or more streamed microblocks and their
// transactions.
type MicroblockUpdate struct {
	Microblocks  []model.Microblock
	Transactions []model.Transaction
}

// BurnchainUpdate bundles one burn block's reward recipients and PoX slot
// holders.
type BurnchainUpdate struct {
	BurnBlockHash   string
	BurnBlockHeight uint32
	Rewards         []model.BurnchainReward
	SlotHolders     []model.RewardSlotHolder
}

// Store is the persistence boundary every message handler writes through.
// Implementations must apply each Update* call atomically: either every row
// in the bundle lands, or none does (spec section 4.7).
type Store interface {
	// UpdateBlock commits one anchor block bundle. If the block's parentage
	// diverges from the chain currently on file, the store detects the
	// fork itself and flips the superseded branch's blocks and microblocks
	// non-canonical as part of the same commit.
	UpdateBlock(ctx context.Context, u BlockUpdate) error

	// UpdateMicroblocks commits a streamed microblock bundle. Microblocks
	// remain unconfirmed (BlockHeight == model.SentinelBlockHeight) until a
	// later UpdateBlock confirms them.
	UpdateMicroblocks(ctx context.Context, u MicroblockUpdate) error

	// UpdateBurnchainRewards commits burn-chain reward recipients and slot
	// holders for one burn block.
	UpdateBurnchainRewards(ctx context.Context, u BurnchainUpdate) error

	// UpdateMempoolTxs upserts incoming mempool transactions.
	UpdateMempoolTxs(ctx context.Context, txs []model.MempoolTx) error

	// DropMempoolTxs marks the named transactions as pruned with the given
	// status.
	DropMempoolTxs(ctx context.Context, txIDs []string, status model.MempoolStatus) error

	// UpdateAttachments persists zonefile attachments and any BNS records
	// derived from them.
	UpdateAttachments(ctx context.Context, attachments []model.Attachment, records []model.BnsRecord) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}

// RawEventLog is the append-only (path, payload) journal every inbound
// request is persisted to before its handler runs (spec section 4.6,
// invariant P5). StoreRawEventRequest is exercised by the HTTP layer's
// recording middleware; Export/Replay are exercised by cmd/eventreplay.
type RawEventLog interface {
	// StoreRawEventRequest appends one record and returns its sequence
	// number.
	StoreRawEventRequest(ctx context.Context, path string, payload []byte) (uint64, error)
}
