package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stacks-event-ingest/internal/bns"
	"stacks-event-ingest/internal/decode"
	"stacks-event-ingest/internal/eventstore"
	"stacks-event-ingest/internal/model"
)

// Handlers composes the decoders, the name-system extractor, and the store
// into the six endpoint handlers of spec section 4.3. Each method performs
// exactly one Store call, per the handler discipline: validate+decode,
// build one update bundle, commit.
type Handlers struct {
	Store eventstore.Store
	Log   *logrus.Entry
}

// New returns a ready Handlers.
func New(store eventstore.Store, log *logrus.Entry) *Handlers {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{Store: store, Log: log}
}

// NewBlock handles POST /new_block.
func (h *Handlers) NewBlock(ctx context.Context, body []byte) error {
	p, err := decode.DecodeNewBlock(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}

	txs := make([]model.Transaction, 0, len(p.Transactions))
	for _, jt := range p.Transactions {
		tx, err := decode.ToModelTransaction(jt)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_block: %w", err))
		}
		txs = append(txs, tx)
	}

	events := make([]model.Event, 0, len(p.Events))
	for _, je := range p.Events {
		ev, err := decode.ToModelEvent(je)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_block: %w", err))
		}
		events = append(events, ev)
	}

	txs, err = NormalizeEvents(txs, events, p.BlockHeight)
	if err != nil {
		return err
	}

	microblocks, gaps := ReconstructMicroblocks(txs)
	for _, g := range gaps {
		h.Log.WithField("block_height", p.BlockHeight).Warn(g)
	}
	for i := range microblocks {
		// Confirmed by this anchor block.
		microblocks[i].BlockHeight = int64(p.BlockHeight)
		microblocks[i].IndexBlockHash = p.IndexBlockHash
		microblocks[i].BlockHash = p.BlockHash
		microblocks[i].ParentIndexBlockHash = p.ParentIndexBlockHash
		microblocks[i].ParentBlockHash = p.ParentBlockHash
	}

	rewards := make([]model.MinerReward, 0, len(p.MaturedMinerRewards))
	for _, r := range p.MaturedMinerRewards {
		mr, err := decode.ToModelMaturedReward(r, p.BlockHash, p.IndexBlockHash, p.BlockHeight)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_block: matured reward: %w", err))
		}
		rewards = append(rewards, mr)
	}

	block := model.Block{
		BlockHash:                p.BlockHash,
		IndexBlockHash:           p.IndexBlockHash,
		ParentIndexBlockHash:     p.ParentIndexBlockHash,
		ParentBlockHash:          p.ParentBlockHash,
		ParentMicroblockHash:     p.ParentMicroblock,
		ParentMicroblockSequence: p.ParentMicroblockSequence,
		BlockHeight:              p.BlockHeight,
		BurnBlockTime:            p.BurnBlockTime,
		BurnBlockHash:            p.BurnBlockHash,
		BurnBlockHeight:          p.BurnBlockHeight,
		MinerTxID:                p.MinerTxID,
		ExecutionCost:            p.AnchoredCost.toModel(),
		Canonical:                true,
	}

	err = h.Store.UpdateBlock(ctx, eventstore.BlockUpdate{
		Block:        block,
		Transactions: txs,
		Microblocks:  microblocks,
		MinerRewards: rewards,
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// NewMicroblocks handles POST /new_microblocks. Anchor-only fields are
// filled with the sentinels of spec section 4.3 until a confirming anchor
// block arrives.
func (h *Handlers) NewMicroblocks(ctx context.Context, body []byte) error {
	p, err := decode.DecodeNewMicroblocks(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}

	txs := make([]model.Transaction, 0, len(p.Transactions))
	for _, jt := range p.Transactions {
		tx, err := decode.ToModelTransaction(jt)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_microblocks: %w", err))
		}
		txs = append(txs, tx)
	}

	events := make([]model.Event, 0, len(p.Events))
	for _, je := range p.Events {
		ev, err := decode.ToModelEvent(je)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_microblocks: %w", err))
		}
		events = append(events, ev)
	}

	txs, err = NormalizeEvents(txs, events, 0)
	if err != nil {
		return err
	}

	microblocks, gaps := ReconstructMicroblocks(txs)
	for _, g := range gaps {
		h.Log.Warn(g)
	}
	for i := range microblocks {
		microblocks[i].BlockHeight = model.SentinelBlockHeight
		microblocks[i].IndexBlockHash = ""
		microblocks[i].BlockHash = ""
		microblocks[i].ParentBlockHash = ""
	}

	if err := h.Store.UpdateMicroblocks(ctx, eventstore.MicroblockUpdate{Microblocks: microblocks, Transactions: txs}); err != nil {
		return storeErr(err)
	}
	return nil
}

// NewBurnBlock handles POST /new_burn_block.
func (h *Handlers) NewBurnBlock(ctx context.Context, body []byte) error {
	p, err := decode.DecodeNewBurnBlock(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}

	rewards := make([]model.BurnchainReward, len(p.RewardRecipients))
	for i, r := range p.RewardRecipients {
		amt, err := parseDecimalUint(r.RewardAmount)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_burn_block: reward amount: %w", err))
		}
		rewards[i] = model.BurnchainReward{
			BurnBlockHash:   p.BurnBlockHash,
			BurnBlockHeight: p.BurnBlockHeight,
			RewardIndex:     i,
			Recipient:       r.RewardRecipient,
			Amount:          amt,
		}
	}

	slots := make([]model.RewardSlotHolder, len(p.RewardSlotHolders))
	for i, s := range p.RewardSlotHolders {
		slots[i] = model.RewardSlotHolder{
			BurnBlockHash:   p.BurnBlockHash,
			BurnBlockHeight: p.BurnBlockHeight,
			SlotIndex:       i,
			Address:         s.Address,
		}
	}

	if err := h.Store.UpdateBurnchainRewards(ctx, eventstore.BurnchainUpdate{
		BurnBlockHash:   p.BurnBlockHash,
		BurnBlockHeight: p.BurnBlockHeight,
		Rewards:         rewards,
		SlotHolders:     slots,
	}); err != nil {
		return storeErr(err)
	}
	return nil
}

// NewMempoolTx handles POST /new_mempool_tx.
func (h *Handlers) NewMempoolTx(ctx context.Context, body []byte) error {
	p, err := decode.DecodeMempoolTx(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}

	now := time.Now().Unix()
	txs := make([]model.MempoolTx, 0, len(p))
	for _, rawHex := range p {
		raw, err := hexDecodeLocal(rawHex)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_mempool_tx: %w", err))
		}
		tx, err := decode.DecodeTransaction(raw, "", "")
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("new_mempool_tx: %w", err))
		}
		txs = append(txs, model.MempoolTx{
			Transaction: tx,
			ReceiptDate: now, // open question (spec section 9): node should supply this.
			Status:      model.MempoolPending,
		})
	}

	if err := h.Store.UpdateMempoolTxs(ctx, txs); err != nil {
		return storeErr(err)
	}
	return nil
}

// DropMempoolTx handles POST /drop_mempool_tx.
func (h *Handlers) DropMempoolTx(ctx context.Context, body []byte) error {
	p, err := decode.DecodeDropMempoolTx(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}
	status := mapDropReason(p.Reason)
	if err := h.Store.DropMempoolTxs(ctx, p.TxIDs, status); err != nil {
		return storeErr(err)
	}
	return nil
}

// mapDropReason implements spec section 4.3's total function from the
// node's free-form reason string to the closed status taxonomy.
func mapDropReason(reason string) model.MempoolStatus {
	switch reason {
	case "ReplaceByFee":
		return model.MempoolDropReplaceByFee
	case "ReplaceAcrossFork":
		return model.MempoolDropReplaceAcrossFork
	case "TooExpensive":
		return model.MempoolDropTooExpensive
	case "StaleGarbageCollect":
		return model.MempoolDropStaleGarbage
	case "Problematic":
		return model.MempoolDropProblematic
	default:
		return model.MempoolDropGeneric
	}
}

// Attachments handles POST /attachments/new.
func (h *Handlers) Attachments(ctx context.Context, body []byte) error {
	p, err := decode.DecodeAttachments(body)
	if err != nil {
		return Wrap(KindDecode, err)
	}

	var attachments []model.Attachment
	var records []model.BnsRecord
	for _, ja := range p {
		metadata, err := hexDecodeLocal(ja.Metadata)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("attachments/new: metadata: %w", err))
		}
		op, name, namespace, ok, err := bns.AttachmentMetadata(metadata)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("attachments/new: %w", err))
		}
		if !ok {
			continue // not a recognized BNS attachment op; ignored per spec section 4.2.
		}
		content, err := hexDecodeLocal(ja.ContentHex)
		if err != nil {
			return Wrap(KindDecode, fmt.Errorf("attachments/new: content: %w", err))
		}
		attachments = append(attachments, model.Attachment{
			Op:             op,
			Name:           name,
			Namespace:      namespace,
			ZonefileHash:   ja.ZonefileHash,
			Content:        content,
			TxID:           ja.TxID,
			IndexBlockHash: ja.IndexBlockHash,
			BlockHeight:    ja.BlockHeight,
		})
		records = append(records, model.BnsRecord{
			Kind:         model.BnsKindName,
			Name:         name,
			Namespace:    namespace,
			ZonefileHash: ja.ZonefileHash,
			TxID:         ja.TxID,
			BlockHeight:  ja.BlockHeight,
			Canonical:    true,
		})
	}

	if err := h.Store.UpdateAttachments(ctx, attachments, records); err != nil {
		return storeErr(err)
	}
	return nil
}

func storeErr(err error) error {
	// Distinguish conflict from unavailability heuristically is the store
	// implementation's job; by default a bare store error is treated as
	// unavailable (retryable), the more conservative classification.
	return Wrap(KindStoreUnavailable, err)
}

func parseDecimalUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("bad decimal amount %q: %w", s, err)
	}
	return v, nil
}

func hexDecodeLocal(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
