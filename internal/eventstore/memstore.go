package eventstore

import (
	"context"
	"sync"

	"stacks-event-ingest/internal/model"
)

// MemStore is an in-process Store used by tests and as cmd/eventreplay's
// replay target. It has no durability guarantees; its only job is to
// exercise the same atomic-bundle contract a real Store must honor.
type MemStore struct {
	mu sync.Mutex

	Blocks           []model.Block
	Transactions     map[string]model.Transaction
	Microblocks      []model.Microblock
	MinerRewards     []model.MinerReward
	BurnchainRewards []model.BurnchainReward
	SlotHolders      []model.RewardSlotHolder
	MempoolTxs       map[string]model.MempoolTx
	Attachments      []model.Attachment
	BnsRecords       []model.BnsRecord
}

// NewMemStore returns a ready, empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Transactions: make(map[string]model.Transaction),
		MempoolTxs:   make(map[string]model.MempoolTx),
	}
}

func (s *MemStore) UpdateBlock(ctx context.Context, u BlockUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	superseded := s.resolveReorgLocked(u.Block)
	supersededSet := make(map[string]bool, len(superseded))
	for _, h := range superseded {
		supersededSet[h] = true
	}
	for i := range s.Blocks {
		if supersededSet[s.Blocks[i].IndexBlockHash] {
			s.Blocks[i].Canonical = false
		}
	}
	for i := range s.Microblocks {
		if supersededSet[s.Microblocks[i].IndexBlockHash] {
			s.Microblocks[i].Canonical = false
		}
	}

	s.Blocks = append(s.Blocks, u.Block)
	for _, t := range u.Transactions {
		s.Transactions[t.TxID] = t
	}
	s.Microblocks = append(s.Microblocks, u.Microblocks...)
	s.MinerRewards = append(s.MinerRewards, u.MinerRewards...)
	return nil
}

// resolveReorgLocked implements the reorg algorithm of spec section 4.7. A
// reorg is signaled by a different block already sitting canonical at b's
// own height — a plain chain extension never collides with an existing
// canonical block at the height it is about to occupy. When that happens,
// b's ancestry is walked backward through stored parent links until it
// reaches a block that is still canonical (the fork point); canonical
// status is restored along that new chain, and every currently-canonical
// block above the fork point is returned as superseded, for the caller to
// flip non-canonical. Caller must hold s.mu.
func (s *MemStore) resolveReorgLocked(b model.Block) []string {
	if b.ParentIndexBlockHash == "" {
		return nil // genesis: no ancestor to diverge from
	}

	byHash := make(map[string]*model.Block, len(s.Blocks))
	var atHeight *model.Block
	for i := range s.Blocks {
		byHash[s.Blocks[i].IndexBlockHash] = &s.Blocks[i]
		if s.Blocks[i].Canonical && s.Blocks[i].BlockHeight == b.BlockHeight {
			atHeight = &s.Blocks[i]
		}
	}
	if atHeight == nil || atHeight.IndexBlockHash == b.IndexBlockHash {
		return nil // extends the canonical chain, or an idempotent resend
	}

	newChain := make(map[string]bool)
	forkHeight := heightMinusOne(b.BlockHeight)
	cursor, ok := byHash[b.ParentIndexBlockHash]
	for ok {
		newChain[cursor.IndexBlockHash] = true
		if cursor.Canonical {
			forkHeight = cursor.BlockHeight
			break
		}
		forkHeight = heightMinusOne(cursor.BlockHeight)
		cursor, ok = byHash[cursor.ParentIndexBlockHash]
	}

	var superseded []string
	for i := range s.Blocks {
		if s.Blocks[i].Canonical && s.Blocks[i].BlockHeight > forkHeight {
			superseded = append(superseded, s.Blocks[i].IndexBlockHash)
		}
	}

	for i := range s.Blocks {
		if newChain[s.Blocks[i].IndexBlockHash] {
			s.Blocks[i].Canonical = true
		}
	}
	for i := range s.Microblocks {
		if newChain[s.Microblocks[i].IndexBlockHash] {
			s.Microblocks[i].Canonical = true
		}
	}
	return superseded
}

func (s *MemStore) UpdateMicroblocks(ctx context.Context, u MicroblockUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Microblocks = append(s.Microblocks, u.Microblocks...)
	for _, t := range u.Transactions {
		s.Transactions[t.TxID] = t
	}
	return nil
}

func (s *MemStore) UpdateBurnchainRewards(ctx context.Context, u BurnchainUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BurnchainRewards = append(s.BurnchainRewards, u.Rewards...)
	s.SlotHolders = append(s.SlotHolders, u.SlotHolders...)
	return nil
}

func (s *MemStore) UpdateMempoolTxs(ctx context.Context, txs []model.MempoolTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		s.MempoolTxs[t.TxID] = t
	}
	return nil
}

func (s *MemStore) DropMempoolTxs(ctx context.Context, txIDs []string, status model.MempoolStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range txIDs {
		if t, ok := s.MempoolTxs[id]; ok {
			t.Pruned = true
			t.Status = status
			s.MempoolTxs[id] = t
		}
	}
	return nil
}

func (s *MemStore) UpdateAttachments(ctx context.Context, attachments []model.Attachment, records []model.BnsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attachments = append(s.Attachments, attachments...)
	s.BnsRecords = append(s.BnsRecords, records...)
	return nil
}

func (s *MemStore) Close(ctx context.Context) error { return nil }
