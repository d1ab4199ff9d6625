package eventstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"stacks-event-ingest/internal/model"
)

// PgStore is the Postgres-backed Store. Every Update* method runs inside a
// single pgx.Tx so a bundle either lands completely or not at all (spec
// section 4.7). The begin/defer-rollback/commit shape, and the per-row
// "ON CONFLICT ... DO UPDATE"/"DO NOTHING" idempotency, are grounded on the
// hieutrtr-go-blockchain-explorer pgx store adapter's InsertBlock and
// MarkBlocksOrphaned.
type PgStore struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// NewPgStore connects to databaseURL and returns a ready PgStore.
func NewPgStore(ctx context.Context, databaseURL string, log *logrus.Entry) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("eventstore: connect: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PgStore{pool: pool, log: log}, nil
}

func (s *PgStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// UpdateBlock commits one anchor block, its transactions, events, and
// miner rewards, and detects and resolves any reorg the block causes, all
// in one transaction.
func (s *PgStore) UpdateBlock(ctx context.Context, u BlockUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventstore: begin block update: %w", err)
	}
	defer tx.Rollback(ctx)

	superseded, err := resolveReorg(ctx, tx, u.Block)
	if err != nil {
		return err
	}
	if len(superseded) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE blocks SET canonical = false WHERE index_block_hash = ANY($1)
		`, superseded); err != nil {
			return fmt.Errorf("eventstore: flip superseded blocks: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE microblocks SET canonical = false WHERE index_block_hash = ANY($1)
		`, superseded); err != nil {
			return fmt.Errorf("eventstore: flip superseded microblocks: %w", err)
		}
		s.log.WithField("count", len(superseded)).WithField("block_height", u.Block.BlockHeight).Warn("reorg: superseded branch flipped non-canonical")
	}

	b := u.Block
	if _, err := tx.Exec(ctx, `
		INSERT INTO blocks (
			block_hash, index_block_hash, parent_index_block_hash, parent_block_hash,
			parent_microblock_hash, parent_microblock_sequence, block_height,
			burn_block_time, burn_block_hash, burn_block_height, miner_txid, canonical
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (index_block_hash) DO UPDATE SET
			canonical = EXCLUDED.canonical
	`, b.BlockHash, b.IndexBlockHash, b.ParentIndexBlockHash, b.ParentBlockHash,
		b.ParentMicroblockHash, b.ParentMicroblockSequence, b.BlockHeight,
		b.BurnBlockTime, b.BurnBlockHash, b.BurnBlockHeight, b.MinerTxID, b.Canonical); err != nil {
		return fmt.Errorf("eventstore: insert block %d: %w", b.BlockHeight, err)
	}

	if err := insertTransactions(ctx, tx, b.IndexBlockHash, u.Transactions); err != nil {
		return err
	}

	for _, mb := range u.Microblocks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO microblocks (
				microblock_hash, microblock_sequence, microblock_parent_hash,
				parent_index_block_hash, parent_burn_block_height, parent_burn_block_hash,
				parent_burn_block_time, block_height, parent_block_height, parent_block_hash,
				index_block_hash, block_hash, canonical, microblock_canonical
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (microblock_hash) DO UPDATE SET
				block_height = EXCLUDED.block_height,
				index_block_hash = EXCLUDED.index_block_hash,
				block_hash = EXCLUDED.block_hash,
				canonical = EXCLUDED.canonical,
				microblock_canonical = EXCLUDED.microblock_canonical
		`, mb.MicroblockHash, mb.MicroblockSequence, mb.MicroblockParentHash,
			mb.ParentIndexBlockHash, mb.ParentBurnBlockHeight, mb.ParentBurnBlockHash,
			mb.ParentBurnBlockTime, mb.BlockHeight, mb.ParentBlockHeight, mb.ParentBlockHash,
			mb.IndexBlockHash, mb.BlockHash, mb.Canonical, mb.MicroblockCanonical); err != nil {
			return fmt.Errorf("eventstore: confirm microblock %s: %w", mb.MicroblockHash, err)
		}
	}

	for _, r := range u.MinerRewards {
		if _, err := tx.Exec(ctx, `
			INSERT INTO miner_rewards (
				block_hash, index_block_hash, from_index_block_hash, mature_block_height,
				recipient, coinbase_amount, tx_fees_anchored, tx_fees_streamed_confirmed,
				tx_fees_streamed_produced, canonical
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT DO NOTHING
		`, r.BlockHash, r.IndexBlockHash, r.FromIndexBlockHash, r.MatureBlockHeight,
			r.Recipient, r.CoinbaseAmount, r.TxFeesAnchored, r.TxFeesStreamedConfirmed,
			r.TxFeesStreamedProduced, r.Canonical); err != nil {
			return fmt.Errorf("eventstore: insert miner reward: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit block %d: %w", b.BlockHeight, err)
	}
	s.log.WithField("block_height", b.BlockHeight).WithField("tx_count", len(u.Transactions)).Info("committed block update")
	return nil
}

// UpdateMicroblocks commits a streamed microblock bundle.
func (s *PgStore) UpdateMicroblocks(ctx context.Context, u MicroblockUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventstore: begin microblock update: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, mb := range u.Microblocks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO microblocks (
				microblock_hash, microblock_sequence, microblock_parent_hash,
				parent_index_block_hash, parent_burn_block_height, parent_burn_block_hash,
				parent_burn_block_time, block_height, parent_block_height, parent_block_hash,
				index_block_hash, block_hash, canonical, microblock_canonical
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (microblock_hash) DO UPDATE SET
				block_height = EXCLUDED.block_height,
				index_block_hash = EXCLUDED.index_block_hash,
				block_hash = EXCLUDED.block_hash,
				canonical = EXCLUDED.canonical,
				microblock_canonical = EXCLUDED.microblock_canonical
		`, mb.MicroblockHash, mb.MicroblockSequence, mb.MicroblockParentHash,
			mb.ParentIndexBlockHash, mb.ParentBurnBlockHeight, mb.ParentBurnBlockHash,
			mb.ParentBurnBlockTime, mb.BlockHeight, mb.ParentBlockHeight, mb.ParentBlockHash,
			mb.IndexBlockHash, mb.BlockHash, mb.Canonical, mb.MicroblockCanonical); err != nil {
			return fmt.Errorf("eventstore: insert microblock %s: %w", mb.MicroblockHash, err)
		}
	}

	if err := insertTransactions(ctx, tx, "", u.Transactions); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit microblock update: %w", err)
	}
	return nil
}

// UpdateBurnchainRewards commits burn-chain reward recipients and slot
// holders for one burn block.
func (s *PgStore) UpdateBurnchainRewards(ctx context.Context, u BurnchainUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventstore: begin burnchain update: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range u.Rewards {
		if _, err := tx.Exec(ctx, `
			INSERT INTO burnchain_rewards (burn_block_hash, burn_block_height, reward_index, recipient, amount)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (burn_block_hash, reward_index) DO NOTHING
		`, r.BurnBlockHash, r.BurnBlockHeight, r.RewardIndex, r.Recipient, r.Amount); err != nil {
			return fmt.Errorf("eventstore: insert burnchain reward: %w", err)
		}
	}
	for _, h := range u.SlotHolders {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reward_slot_holders (burn_block_hash, burn_block_height, slot_index, address)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (burn_block_hash, slot_index) DO NOTHING
		`, h.BurnBlockHash, h.BurnBlockHeight, h.SlotIndex, h.Address); err != nil {
			return fmt.Errorf("eventstore: insert reward slot holder: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit burnchain update: %w", err)
	}
	return nil
}

// UpdateMempoolTxs upserts incoming mempool transactions.
func (s *PgStore) UpdateMempoolTxs(ctx context.Context, txs []model.MempoolTx) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventstore: begin mempool update: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, mtx := range txs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO mempool_txs (tx_id, sender_address, nonce, fee, receipt_date, pruned, status, raw_tx)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (tx_id) DO UPDATE SET
				receipt_date = EXCLUDED.receipt_date,
				pruned = EXCLUDED.pruned,
				status = EXCLUDED.status
		`, mtx.TxID, mtx.SenderAddress, mtx.Nonce, mtx.Fee, mtx.ReceiptDate, mtx.Pruned, string(mtx.Status), mtx.RawTx); err != nil {
			return fmt.Errorf("eventstore: insert mempool tx %s: %w", mtx.TxID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit mempool update: %w", err)
	}
	return nil
}

// DropMempoolTxs marks the named transactions pruned with the given status.
func (s *PgStore) DropMempoolTxs(ctx context.Context, txIDs []string, status model.MempoolStatus) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE mempool_txs SET pruned = true, status = $2 WHERE tx_id = ANY($1)
	`, txIDs, string(status)); err != nil {
		return fmt.Errorf("eventstore: drop mempool txs: %w", err)
	}
	return nil
}

// UpdateAttachments persists zonefile attachments and BNS records derived
// from them.
func (s *PgStore) UpdateAttachments(ctx context.Context, attachments []model.Attachment, records []model.BnsRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventstore: begin attachment update: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range attachments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO attachments (op, name, namespace, zonefile_hash, content, tx_id, index_block_hash, block_height)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (zonefile_hash) DO NOTHING
		`, a.Op, a.Name, a.Namespace, a.ZonefileHash, a.Content, a.TxID, a.IndexBlockHash, a.BlockHeight); err != nil {
			return fmt.Errorf("eventstore: insert attachment: %w", err)
		}
	}
	if err := insertBnsRecords(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit attachment update: %w", err)
	}
	return nil
}

// resolveReorg implements spec section 4.7's reorg algorithm: "the store
// implements the reorg algorithm", detecting and resolving forks itself
// rather than trusting a caller-supplied list of superseded hashes. If a
// different block is already canonical at b's height, b's branch is taking
// over: its ancestry is walked backward through already-stored parent
// links until a still-canonical ancestor is found (the fork point),
// canonical status is restored along that new chain, and every
// currently-canonical block above the fork point is returned so the caller
// can flip it non-canonical.
func resolveReorg(ctx context.Context, tx pgx.Tx, b model.Block) ([]string, error) {
	if b.ParentIndexBlockHash == "" {
		return nil, nil // genesis: no ancestor to diverge from
	}

	var existingHash string
	err := tx.QueryRow(ctx, `
		SELECT index_block_hash FROM blocks WHERE canonical = true AND block_height = $1
	`, b.BlockHeight).Scan(&existingHash)
	if err == pgx.ErrNoRows {
		return nil, nil // nothing canonical at this height yet: plain extension
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: query canonical block at height %d: %w", b.BlockHeight, err)
	}
	if existingHash == b.IndexBlockHash {
		return nil, nil // idempotent resend of the same block
	}

	newChain := map[string]bool{}
	forkHeight := heightMinusOne(b.BlockHeight)
	cursorHash := b.ParentIndexBlockHash
	for {
		var parentHash string
		var height uint32
		var canonical bool
		err := tx.QueryRow(ctx, `
			SELECT parent_index_block_hash, block_height, canonical FROM blocks WHERE index_block_hash = $1
		`, cursorHash).Scan(&parentHash, &height, &canonical)
		if err == pgx.ErrNoRows {
			break // ancestry runs off the known chain; use the fallback height
		}
		if err != nil {
			return nil, fmt.Errorf("eventstore: walk new chain ancestry: %w", err)
		}
		newChain[cursorHash] = true
		if canonical {
			forkHeight = height
			break
		}
		forkHeight = heightMinusOne(height)
		cursorHash = parentHash
	}

	rows, err := tx.Query(ctx, `
		SELECT index_block_hash FROM blocks WHERE canonical = true AND block_height > $1
	`, forkHeight)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query superseded chain: %w", err)
	}
	var superseded []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, err
		}
		superseded = append(superseded, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(newChain) > 0 {
		hashes := make([]string, 0, len(newChain))
		for h := range newChain {
			hashes = append(hashes, h)
		}
		if _, err := tx.Exec(ctx, `UPDATE blocks SET canonical = true WHERE index_block_hash = ANY($1)`, hashes); err != nil {
			return nil, fmt.Errorf("eventstore: restore new chain canonical: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE microblocks SET canonical = true WHERE index_block_hash = ANY($1)`, hashes); err != nil {
			return nil, fmt.Errorf("eventstore: restore new chain microblocks canonical: %w", err)
		}
	}

	return superseded, nil
}

func heightMinusOne(h uint32) uint32 {
	if h == 0 {
		return 0
	}
	return h - 1
}

func insertTransactions(ctx context.Context, tx pgx.Tx, indexBlockHash string, txs []model.Transaction) error {
	for _, t := range txs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transactions (
				tx_id, tx_index, nonce, type_id, sender_address, sponsor_address, fee,
				microblock_hash, event_count, canonical, index_block_hash, raw_tx
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (tx_id) DO UPDATE SET
				canonical = EXCLUDED.canonical,
				event_count = EXCLUDED.event_count,
				index_block_hash = EXCLUDED.index_block_hash
		`, t.TxID, t.TxIndex, t.Nonce, int(t.TypeID), t.SenderAddress, t.SponsorAddress, t.Fee,
			t.MicroblockHash, t.EventCount, t.Canonical, indexBlockHash, t.RawTx); err != nil {
			return fmt.Errorf("eventstore: insert tx %s: %w", t.TxID, err)
		}
		if err := insertEvents(ctx, tx, t.Events); err != nil {
			return err
		}
		if err := insertBnsRecords(ctx, tx, t.Names); err != nil {
			return err
		}
	}
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []model.Event) error {
	for _, e := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (
				tx_id, event_index, tx_index, block_height, canonical, kind,
				contract_identifier, topic, value, locked_amount, unlock_height,
				locked_address, asset_op, asset_identifier, sender, recipient, amount, nft_value
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (tx_id, event_index) DO UPDATE SET canonical = EXCLUDED.canonical
		`, e.TxID, e.EventIndex, e.TxIndex, e.BlockHeight, e.Canonical, int(e.Kind),
			e.ContractIdentifier, e.Topic, e.Value, e.LockedAmount, e.UnlockHeight,
			e.LockedAddress, int(e.AssetOp), e.AssetIdentifier, e.Sender, e.Recipient, e.Amount, e.NFTValue); err != nil {
			return fmt.Errorf("eventstore: insert event %s/%d: %w", e.TxID, e.EventIndex, err)
		}
	}
	return nil
}

func insertBnsRecords(ctx context.Context, tx pgx.Tx, records []model.BnsRecord) error {
	for _, r := range records {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bns_records (kind, name, namespace, fully_qualified, address, expire, zonefile_hash, tx_id, block_height, canonical)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (tx_id, name, namespace) DO UPDATE SET
				address = EXCLUDED.address,
				expire = EXCLUDED.expire,
				canonical = EXCLUDED.canonical
		`, int(r.Kind), r.Name, r.Namespace, r.FullyQualified, r.Address, r.Expire, r.ZonefileHash, r.TxID, r.BlockHeight, r.Canonical); err != nil {
			return fmt.Errorf("eventstore: insert bns record %s.%s: %w", r.Name, r.Namespace, err)
		}
	}
	return nil
}
