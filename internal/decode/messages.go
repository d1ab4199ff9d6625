package decode

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"stacks-event-ingest/internal/model"
)

// These structs mirror the node's JSON wire shapes closely enough to decode
// them; they are deliberately permissive about unknown fields (spec
// section 9's "Dynamic JSON payloads" note: reject on unknown *variant*,
// not unknown field — the node's payloads carry fields this indexer does
// not model yet).

type jsonExecutionCost struct {
	ReadCount   uint64 `json:"read_count"`
	ReadLength  uint64 `json:"read_length"`
	Runtime     uint64 `json:"runtime"`
	WriteCount  uint64 `json:"write_count"`
	WriteLength uint64 `json:"write_length"`
}

func (c jsonExecutionCost) toModel() model.ExecutionCost {
	return model.ExecutionCost{
		ReadCount: c.ReadCount, ReadLength: c.ReadLength, Runtime: c.Runtime,
		WriteCount: c.WriteCount, WriteLength: c.WriteLength,
	}
}

type jsonTx struct {
	TxID           string             `json:"txid"`
	RawTx          string             `json:"raw_tx"` // 0x-prefixed hex
	TxIndex        uint32             `json:"tx_index"`
	Status         string             `json:"status"`
	RawResult      string             `json:"raw_result"`
	MicroblockHash       string            `json:"microblock_hash"`
	MicroblockSequence   uint16            `json:"microblock_sequence"`
	MicroblockParentHash string            `json:"microblock_parent_hash"`
	ExecutionCost        jsonExecutionCost `json:"execution_cost"`
	ContractABI    json.RawMessage    `json:"contract_abi"`
}

type jsonEvent struct {
	EventIndex int    `json:"event_index"`
	TxID       string `json:"txid"`
	Committed  bool   `json:"committed"`
	Type       string `json:"type"`

	ContractEvent *struct {
		ContractIdentifier string `json:"contract_identifier"`
		Topic               string `json:"topic"`
		RawValue            string `json:"raw_value"`
	} `json:"contract_event"`

	STXLockEvent *struct {
		LockedAmount string `json:"locked_amount"`
		UnlockHeight uint32 `json:"unlock_height"`
		LockedAddress string `json:"locked_address"`
	} `json:"stx_lock_event"`

	STXEvent *struct {
		Type      string `json:"type"`
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	} `json:"stx_asset_event"`

	FTEvent *struct {
		Type            string `json:"type"`
		Sender          string `json:"sender"`
		Recipient       string `json:"recipient"`
		Amount          string `json:"amount"`
		AssetIdentifier string `json:"asset_identifier"`
	} `json:"ft_asset_event"`

	NFTEvent *struct {
		Type            string `json:"type"`
		Sender          string `json:"sender"`
		Recipient       string `json:"recipient"`
		Value           string `json:"value"`
		AssetIdentifier string `json:"asset_identifier"`
	} `json:"nft_asset_event"`
}

type jsonMaturedReward struct {
	Recipient               string `json:"recipient"`
	CoinbaseAmount          string `json:"coinbase_amount"`
	TxFeesAnchored          string `json:"tx_fees_anchored"`
	TxFeesStreamedConfirmed string `json:"tx_fees_streamed_confirmed"`
	TxFeesStreamedProduced  string `json:"tx_fees_streamed_produced"`
	FromIndexBlockHash      string `json:"from_index_block_hash"`
}

// NewBlockPayload is the body of POST /new_block.
type NewBlockPayload struct {
	BlockHash                string              `json:"block_hash"`
	IndexBlockHash           string              `json:"index_block_hash"`
	ParentIndexBlockHash     string              `json:"parent_index_block_hash"`
	ParentBlockHash          string              `json:"parent_block_hash"`
	ParentMicroblock         string              `json:"parent_microblock"`
	ParentMicroblockSequence uint16              `json:"parent_microblock_sequence"`
	BlockHeight              uint32              `json:"block_height"`
	BurnBlockTime            int64               `json:"burn_block_time"`
	BurnBlockHash            string              `json:"burn_block_hash"`
	BurnBlockHeight          uint32              `json:"burn_block_height"`
	MinerTxID                string              `json:"miner_txid"`
	AnchoredCost             jsonExecutionCost   `json:"anchored_cost"`
	Transactions             []jsonTx            `json:"transactions"`
	Events                   []jsonEvent         `json:"events"`
	MaturedMinerRewards      []jsonMaturedReward `json:"matured_miner_rewards"`
}

// NewMicroblocksPayload is the body of POST /new_microblocks.
type NewMicroblocksPayload struct {
	Transactions []jsonTx    `json:"transactions"`
	Events       []jsonEvent `json:"events"`
}

type jsonBurnReward struct {
	RewardRecipient string `json:"reward_recipient"`
	RewardAmount    string `json:"reward_amount"`
}

type jsonSlotHolder struct {
	Address string `json:"address"`
}

// NewBurnBlockPayload is the body of POST /new_burn_block.
type NewBurnBlockPayload struct {
	BurnBlockHash      string           `json:"burn_block_hash"`
	BurnBlockHeight    uint32           `json:"burn_block_height"`
	RewardRecipients   []jsonBurnReward `json:"reward_recipients"`
	RewardSlotHolders  []jsonSlotHolder `json:"reward_slot_holders"`
}

// MempoolTxPayload is the body of POST /new_mempool_tx: a bare array of
// raw-tx hex strings.
type MempoolTxPayload []string

// DropMempoolTxPayload is the body of POST /drop_mempool_tx.
type DropMempoolTxPayload struct {
	TxIDs  []string `json:"txids"`
	Reason string   `json:"reason"`
}

type jsonAttachment struct {
	TxID           string `json:"tx_id"`
	ContentHex     string `json:"content"` // 0x-prefixed hex zonefile body
	Metadata       string `json:"metadata"` // 0x-prefixed hex clarity tuple
	ZonefileHash   string `json:"zonefile_hash"`
	IndexBlockHash string `json:"index_block_hash"`
	BlockHeight    uint32 `json:"block_height"`
}

// AttachmentsPayload is the body of POST /attachments/new.
type AttachmentsPayload []jsonAttachment

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// DecodeNewBlock unmarshals a /new_block body.
func DecodeNewBlock(body []byte) (NewBlockPayload, error) {
	var p NewBlockPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return NewBlockPayload{}, fmt.Errorf("decode: new_block: %w", err)
	}
	return p, nil
}

// DecodeNewMicroblocks unmarshals a /new_microblocks body.
func DecodeNewMicroblocks(body []byte) (NewMicroblocksPayload, error) {
	var p NewMicroblocksPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return NewMicroblocksPayload{}, fmt.Errorf("decode: new_microblocks: %w", err)
	}
	return p, nil
}

// DecodeNewBurnBlock unmarshals a /new_burn_block body.
func DecodeNewBurnBlock(body []byte) (NewBurnBlockPayload, error) {
	var p NewBurnBlockPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return NewBurnBlockPayload{}, fmt.Errorf("decode: new_burn_block: %w", err)
	}
	return p, nil
}

// DecodeMempoolTx unmarshals a /new_mempool_tx body.
func DecodeMempoolTx(body []byte) (MempoolTxPayload, error) {
	var p MempoolTxPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode: new_mempool_tx: %w", err)
	}
	return p, nil
}

// DecodeDropMempoolTx unmarshals a /drop_mempool_tx body.
func DecodeDropMempoolTx(body []byte) (DropMempoolTxPayload, error) {
	var p DropMempoolTxPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return DropMempoolTxPayload{}, fmt.Errorf("decode: drop_mempool_tx: %w", err)
	}
	return p, nil
}

// DecodeAttachments unmarshals an /attachments/new body.
func DecodeAttachments(body []byte) (AttachmentsPayload, error) {
	var p AttachmentsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode: attachments/new: %w", err)
	}
	return p, nil
}

// u128String parses a decimal string (the node's representation of a u128)
// into a uint64, which covers every spec amount field in practice.
func u128String(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("decode: bad u128 %q: %w", s, err)
	}
	return v, nil
}

// ToModelTransaction converts a decoded JSON tx envelope plus its
// binary-decoded body into the final model.Transaction, per spec section
// 4.1.
func ToModelTransaction(jt jsonTx) (model.Transaction, error) {
	raw, err := hexDecode(jt.RawTx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("decode: tx %s raw_tx: %w", jt.TxID, err)
	}
	tx, err := DecodeTransaction(raw, jt.TxID, jt.MicroblockHash)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("decode: tx %s: %w", jt.TxID, err)
	}
	tx.TxIndex = jt.TxIndex
	tx.MicroblockSequence = jt.MicroblockSequence
	tx.MicroblockParentHash = jt.MicroblockParentHash
	tx.CoreTx = model.CoreTxReceipt{Status: jt.Status, Result: jt.RawResult}
	tx.ExecutionCost = jt.ExecutionCost.toModel()
	if len(jt.ContractABI) > 0 && string(jt.ContractABI) != "null" {
		tx.ContractABI = []byte(jt.ContractABI)
	}
	return tx, nil
}

// ToModelEvent converts a decoded JSON event into the final model.Event. It
// returns an error (EventKind unrecognized) rather than silently dropping
// the event, per spec section 9.
func ToModelEvent(je jsonEvent) (model.Event, error) {
	base := model.Event{
		EventIndex:  je.EventIndex,
		TxID:        je.TxID,
		Committed:   je.Committed,
		Canonical:   true,
	}

	switch {
	case je.ContractEvent != nil:
		val, err := hexDecode(je.ContractEvent.RawValue)
		if err != nil {
			return model.Event{}, fmt.Errorf("decode: contract event value: %w", err)
		}
		base.Kind = model.EventSmartContractLog
		base.ContractIdentifier = je.ContractEvent.ContractIdentifier
		base.Topic = je.ContractEvent.Topic
		base.Value = val
		return base, nil

	case je.STXLockEvent != nil:
		amt, err := u128String(je.STXLockEvent.LockedAmount)
		if err != nil {
			return model.Event{}, err
		}
		base.Kind = model.EventStxLock
		base.LockedAmount = amt
		base.UnlockHeight = je.STXLockEvent.UnlockHeight
		base.LockedAddress = je.STXLockEvent.LockedAddress
		return base, nil

	case je.STXEvent != nil:
		op, err := parseAssetOp(je.STXEvent.Type)
		if err != nil {
			return model.Event{}, err
		}
		amt, err := u128String(je.STXEvent.Amount)
		if err != nil {
			return model.Event{}, err
		}
		base.Kind = model.EventStxAsset
		base.AssetOp = op
		base.Sender = je.STXEvent.Sender
		base.Recipient = je.STXEvent.Recipient
		base.Amount = amt
		return base, nil

	case je.FTEvent != nil:
		op, err := parseAssetOp(je.FTEvent.Type)
		if err != nil {
			return model.Event{}, err
		}
		amt, err := u128String(je.FTEvent.Amount)
		if err != nil {
			return model.Event{}, err
		}
		base.Kind = model.EventFungibleTokenAsset
		base.AssetOp = op
		base.Sender = je.FTEvent.Sender
		base.Recipient = je.FTEvent.Recipient
		base.Amount = amt
		base.AssetIdentifier = je.FTEvent.AssetIdentifier
		return base, nil

	case je.NFTEvent != nil:
		op, err := parseAssetOp(je.NFTEvent.Type)
		if err != nil {
			return model.Event{}, err
		}
		val, err := hexDecode(je.NFTEvent.Value)
		if err != nil {
			return model.Event{}, fmt.Errorf("decode: nft event value: %w", err)
		}
		base.Kind = model.EventNonFungibleTokenAsset
		base.AssetOp = op
		base.Sender = je.NFTEvent.Sender
		base.Recipient = je.NFTEvent.Recipient
		base.NFTValue = val
		base.AssetIdentifier = je.NFTEvent.AssetIdentifier
		return base, nil

	default:
		return model.Event{}, fmt.Errorf("decode: unrecognized event type %q for tx %s", je.Type, je.TxID)
	}
}

func parseAssetOp(s string) (model.AssetOp, error) {
	switch s {
	case "transfer":
		return model.AssetTransfer, nil
	case "mint":
		return model.AssetMint, nil
	case "burn":
		return model.AssetBurn, nil
	default:
		return 0, fmt.Errorf("decode: unrecognized asset event op %q", s)
	}
}

// ToModelMaturedReward converts a matured-reward JSON entry.
func ToModelMaturedReward(r jsonMaturedReward, blockHash, indexBlockHash string, matureHeight uint32) (model.MinerReward, error) {
	coinbase, err := u128String(r.CoinbaseAmount)
	if err != nil {
		return model.MinerReward{}, err
	}
	anchored, err := u128String(r.TxFeesAnchored)
	if err != nil {
		return model.MinerReward{}, err
	}
	streamedConfirmed, err := u128String(r.TxFeesStreamedConfirmed)
	if err != nil {
		return model.MinerReward{}, err
	}
	streamedProduced, err := u128String(r.TxFeesStreamedProduced)
	if err != nil {
		return model.MinerReward{}, err
	}
	return model.MinerReward{
		BlockHash:               blockHash,
		IndexBlockHash:          indexBlockHash,
		FromIndexBlockHash:      r.FromIndexBlockHash,
		MatureBlockHeight:       matureHeight,
		Recipient:               r.Recipient,
		CoinbaseAmount:          coinbase,
		TxFeesAnchored:          anchored,
		TxFeesStreamedConfirmed: streamedConfirmed,
		TxFeesStreamedProduced:  streamedProduced,
		Canonical:               true,
	}, nil
}
