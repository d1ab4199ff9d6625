// Package model holds the domain types of spec section 3 (Data Model). It
// has no behavior of its own — decoders, the name-system extractor, the
// handlers, and the store all operate on these shapes.
package model

// ExecutionCost mirrors the node's resource-accounting tuple, carried
// verbatim on blocks and transactions.
type ExecutionCost struct {
	ReadCount   uint64
	ReadLength  uint64
	Runtime     uint64
	WriteCount  uint64
	WriteLength uint64
}

// Block is an anchor block, settled on the burn chain. Canonical is always
// true on insert (spec section 3); the store flips it during reorg.
type Block struct {
	BlockHash                string
	IndexBlockHash           string
	ParentIndexBlockHash     string
	ParentBlockHash          string
	ParentMicroblockHash     string
	ParentMicroblockSequence uint16
	BlockHeight              uint32
	BurnBlockTime            int64
	BurnBlockHash            string
	BurnBlockHeight          uint32
	MinerTxID                string
	ExecutionCost            ExecutionCost
	Canonical                bool
}

// UnconfirmedMicroblockSentinel values, used until the confirming anchor
// block arrives (spec section 3).
const (
	SentinelBlockHeight = -1
)

// Microblock is a streamed sub-block, confirmed retroactively by an anchor
// block. Until confirmed, IndexBlockHash/BlockHash are empty and BlockHeight
// is SentinelBlockHeight.
type Microblock struct {
	MicroblockHash         string
	MicroblockSequence     uint16
	MicroblockParentHash   string
	ParentIndexBlockHash   string
	ParentBurnBlockHeight  uint32
	ParentBurnBlockHash    string
	ParentBurnBlockTime    int64
	BlockHeight            int64 // -1 (SentinelBlockHeight) until confirmed
	ParentBlockHeight      uint32
	ParentBlockHash        string
	IndexBlockHash         string // empty until confirmed
	BlockHash              string // empty until confirmed
	Canonical              bool
	MicroblockCanonical    bool
}

// TxPayloadKind is the closed tag set for TxPayload.
type TxPayloadKind int

const (
	TxPayloadTokenTransfer TxPayloadKind = iota
	TxPayloadContractCall
	TxPayloadSmartContract
	TxPayloadPoisonMicroblock
	TxPayloadCoinbase
	TxPayloadVersionedSmartContract
)

func (k TxPayloadKind) String() string {
	switch k {
	case TxPayloadTokenTransfer:
		return "token_transfer"
	case TxPayloadContractCall:
		return "contract_call"
	case TxPayloadSmartContract:
		return "smart_contract"
	case TxPayloadPoisonMicroblock:
		return "poison_microblock"
	case TxPayloadCoinbase:
		return "coinbase"
	case TxPayloadVersionedSmartContract:
		return "versioned_smart_contract"
	default:
		return "unknown"
	}
}

// TxPayload is the tagged variant carried by every transaction. Only the
// fields relevant to Kind are populated.
type TxPayload struct {
	Kind TxPayloadKind

	// TokenTransfer
	RecipientAddress string
	Amount           uint64
	Memo             []byte

	// ContractCall / SmartContract / VersionedSmartContract
	ContractAddress  string
	ContractName     string
	FunctionName     string
	FunctionArgsRaw  [][]byte
	ContractSource   string
	ClarityVersion   int

	// Coinbase
	CoinbasePayload [32]byte
}

// CoreTxReceipt is the subset of the node's per-tx receipt the core cares
// about.
type CoreTxReceipt struct {
	Status string
	Result string
}

// Transaction is one transaction within a block, microblock, or the
// mempool.
type Transaction struct {
	TxID              string
	TxIndex           uint32
	Nonce             uint64
	TypeID            TxPayloadKind
	SenderAddress     string
	SponsorAddress    string // empty when not sponsored
	Fee               uint64
	AnchorMode        uint8
	PostConditionMode uint8
	PostConditions    []byte
	RawTx             []byte
	Payload           TxPayload
	MicroblockHash    string // empty when anchor-confirmed directly
	MicroblockSequence uint16 // only meaningful alongside MicroblockHash
	MicroblockParentHash string // only meaningful alongside MicroblockHash
	EventCount        int
	Canonical         bool
	OriginHashMode    uint8
	CoreTx            CoreTxReceipt
	ExecutionCost     ExecutionCost
	ContractABI       []byte // nil unless the tx deploys a contract

	Events []Event
	Names  []BnsRecord // populated by the name-system extractor
}

// EventKind is the closed tag set for Event.
type EventKind int

const (
	EventSmartContractLog EventKind = iota
	EventStxLock
	EventStxAsset
	EventFungibleTokenAsset
	EventNonFungibleTokenAsset
)

// AssetOp is the closed sub-variant shared by the three asset event kinds.
type AssetOp int

const (
	AssetTransfer AssetOp = iota
	AssetMint
	AssetBurn
)

// Event is one typed side effect of a transaction (spec section 3). Only
// the fields relevant to Kind are populated.
type Event struct {
	EventIndex  int
	TxID        string
	TxIndex     uint32
	BlockHeight uint32
	Canonical   bool
	Committed   bool

	Kind EventKind

	// SmartContractLog
	ContractIdentifier string
	Topic              string
	Value              []byte

	// StxLock
	LockedAmount  uint64
	UnlockHeight  uint32
	LockedAddress string

	// StxAsset / FungibleTokenAsset / NonFungibleTokenAsset
	AssetOp          AssetOp
	AssetIdentifier  string // FT/NFT only
	Sender           string
	Recipient        string
	Amount           uint64  // STX / FT
	NFTValue         []byte  // NFT only
}

// MinerReward is a matured miner reward (spec section 3).
type MinerReward struct {
	BlockHash                string
	IndexBlockHash           string
	FromIndexBlockHash       string
	MatureBlockHeight        uint32
	Recipient                string
	CoinbaseAmount           uint64
	TxFeesAnchored           uint64
	TxFeesStreamedConfirmed  uint64
	TxFeesStreamedProduced   uint64
	Canonical                bool
}

// BurnchainReward is a burn-chain-level reward tied to (burn_block_hash,
// burn_block_height), numbered in emission order.
type BurnchainReward struct {
	BurnBlockHash   string
	BurnBlockHeight uint32
	RewardIndex     int
	Recipient       string
	Amount          uint64
}

// RewardSlotHolder is a burn-chain PoX slot holder, numbered in emission
// order.
type RewardSlotHolder struct {
	BurnBlockHash   string
	BurnBlockHeight uint32
	SlotIndex       int
	Address         string
}

// MempoolStatus is the closed status taxonomy a mempool transaction may
// carry.
type MempoolStatus string

const (
	MempoolPending              MempoolStatus = "pending"
	MempoolDropReplaceByFee     MempoolStatus = "ReplaceByFee"
	MempoolDropReplaceAcrossFork MempoolStatus = "ReplaceAcrossFork"
	MempoolDropTooExpensive     MempoolStatus = "TooExpensive"
	MempoolDropStaleGarbage     MempoolStatus = "StaleGarbageCollect"
	MempoolDropProblematic      MempoolStatus = "Problematic"
	MempoolDropGeneric          MempoolStatus = "Dropped"
)

// MempoolTx is a Transaction shell plus mempool-specific bookkeeping (spec
// section 3).
type MempoolTx struct {
	Transaction
	ReceiptDate int64
	Pruned      bool
	Status      MempoolStatus
}

// BnsRecordKind distinguishes the three name-system record shapes.
type BnsRecordKind int

const (
	BnsKindName BnsRecordKind = iota
	BnsKindNamespace
	BnsKindSubdomain
)

// BnsRecord is a name/namespace/subdomain record derived by the name-system
// extractor (spec section 4.2).
type BnsRecord struct {
	Kind          BnsRecordKind
	Name          string
	Namespace     string
	FullyQualified string // subdomain only
	Address       string
	Expire        uint64
	ZonefileHash  string
	TxID          string
	BlockHeight   uint32
	Canonical     bool
}

// Attachment is a zonefile payload delivered alongside a BNS operation
// (spec section 4.2, 4.3).
type Attachment struct {
	Op           string
	Name         string
	Namespace    string
	ZonefileHash string
	Content      []byte // raw zonefile bytes, 0x-prefix already stripped
	TxID         string
	IndexBlockHash string
	BlockHeight  uint32
}

// RawEventRecord is one append-only (path, payload) pair (spec section 4.6).
type RawEventRecord struct {
	Seq     uint64
	Path    string
	Payload []byte
}
