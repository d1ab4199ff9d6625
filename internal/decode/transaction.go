package decode

import (
	"encoding/binary"
	"fmt"

	"stacks-event-ingest/internal/model"
)

// ErrTruncated is returned by DecodeTransaction when raw ends before a
// complete transaction has been parsed. Per spec section 4.1, the handler
// aborts the entire message on this error.
var ErrTruncated = fmt.Errorf("decode: transaction truncated")

const (
	authStandard  = 0x04
	authSponsored = 0x05
)

// DecodeTransaction parses the node's raw serialized transaction bytes into
// a structured Transaction. txID and microblockHash come from the JSON
// envelope around raw_tx (the node reports them separately; hashing raw_tx
// to derive a txid is the job of the out-of-scope crypto helpers, not this
// decoder).
func DecodeTransaction(raw []byte, txID string, microblockHash string) (model.Transaction, error) {
	if len(raw) < 2 {
		return model.Transaction{}, ErrTruncated
	}
	// byte 0: version, byte 1: chain id high byte of a 4-byte field (ignored
	// here; chain id validation happens once at startup against the node).
	off := 1 + 4

	authType, n, err := readByte(raw, off)
	if err != nil {
		return model.Transaction{}, err
	}
	off = n

	var sender, sponsor string
	var nonce, fee uint64
	var originHashMode uint8

	switch authType {
	case authStandard:
		originHashMode, sender, nonce, fee, off, err = decodeSpendingCondition(raw, off)
		if err != nil {
			return model.Transaction{}, err
		}
	case authSponsored:
		originHashMode, sender, nonce, fee, off, err = decodeSpendingCondition(raw, off)
		if err != nil {
			return model.Transaction{}, err
		}
		_, sponsor, _, _, off, err = decodeSpendingCondition(raw, off)
		if err != nil {
			return model.Transaction{}, err
		}
	default:
		return model.Transaction{}, fmt.Errorf("decode: unknown auth type 0x%x", authType)
	}

	anchorMode, off, err := readByte(raw, off)
	if err != nil {
		return model.Transaction{}, err
	}
	postConditionMode, off, err := readByte(raw, off)
	if err != nil {
		return model.Transaction{}, err
	}

	postConditions, off, err := readLengthPrefixed(raw, off)
	if err != nil {
		return model.Transaction{}, err
	}

	payload, _, err := decodePayload(raw, off)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		TxID:              txID,
		Nonce:             nonce,
		TypeID:            payload.Kind,
		SenderAddress:     sender,
		SponsorAddress:    sponsor,
		Fee:               fee,
		AnchorMode:        anchorMode,
		PostConditionMode: postConditionMode,
		PostConditions:    postConditions,
		RawTx:             raw,
		Payload:           payload,
		MicroblockHash:    microblockHash,
		Canonical:         true,
		OriginHashMode:    originHashMode,
	}
	return tx, nil
}

// decodeSpendingCondition reads {hashMode byte, 20-byte address, nonce u64,
// fee u64} and returns the hex-encoded address.
func decodeSpendingCondition(raw []byte, off int) (hashMode uint8, addr string, nonce, fee uint64, newOff int, err error) {
	hashMode, off, err = readByte(raw, off)
	if err != nil {
		return 0, "", 0, 0, off, err
	}
	if len(raw) < off+20 {
		return 0, "", 0, 0, off, ErrTruncated
	}
	addr = fmt.Sprintf("%x", raw[off:off+20])
	off += 20
	if len(raw) < off+16 {
		return 0, "", 0, 0, off, ErrTruncated
	}
	nonce = binary.BigEndian.Uint64(raw[off : off+8])
	fee = binary.BigEndian.Uint64(raw[off+8 : off+16])
	off += 16
	return hashMode, addr, nonce, fee, off, nil
}

func readByte(raw []byte, off int) (byte, int, error) {
	if len(raw) < off+1 {
		return 0, off, ErrTruncated
	}
	return raw[off], off + 1, nil
}

func readLengthPrefixed(raw []byte, off int) ([]byte, int, error) {
	if len(raw) < off+4 {
		return nil, off, ErrTruncated
	}
	n := int(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 4
	if len(raw) < off+n {
		return nil, off, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, raw[off:off+n])
	return out, off + n, nil
}

// decodePayload reads the tagged TxPayload starting at off.
func decodePayload(raw []byte, off int) (model.TxPayload, int, error) {
	kindByte, off, err := readByte(raw, off)
	if err != nil {
		return model.TxPayload{}, off, err
	}
	kind := model.TxPayloadKind(kindByte)

	switch kind {
	case model.TxPayloadTokenTransfer:
		if len(raw) < off+20 {
			return model.TxPayload{}, off, ErrTruncated
		}
		recipient := fmt.Sprintf("%x", raw[off:off+20])
		off += 20
		if len(raw) < off+8 {
			return model.TxPayload{}, off, ErrTruncated
		}
		amount := binary.BigEndian.Uint64(raw[off : off+8])
		off += 8
		memo, off, err := readLengthPrefixed(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		return model.TxPayload{Kind: kind, RecipientAddress: recipient, Amount: amount, Memo: memo}, off, nil

	case model.TxPayloadContractCall:
		contractAddr, contractName, off, err := readContractID(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		fnName, off, err := readString1(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		if len(raw) < off+4 {
			return model.TxPayload{}, off, ErrTruncated
		}
		argCount := int(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4
		args := make([][]byte, 0, argCount)
		for i := 0; i < argCount; i++ {
			_, n, err := DecodeClarityValue(raw[off:])
			if err != nil {
				return model.TxPayload{}, off, err
			}
			args = append(args, raw[off:off+n])
			off += n
		}
		return model.TxPayload{Kind: kind, ContractAddress: contractAddr, ContractName: contractName, FunctionName: fnName, FunctionArgsRaw: args}, off, nil

	case model.TxPayloadSmartContract, model.TxPayloadVersionedSmartContract:
		var version int
		if kind == model.TxPayloadVersionedSmartContract {
			v, o, err := readByte(raw, off)
			if err != nil {
				return model.TxPayload{}, off, err
			}
			version = int(v)
			off = o
		}
		name, off, err := readString1(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		src, off, err := readLengthPrefixed(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		return model.TxPayload{Kind: kind, ContractName: name, ContractSource: string(src), ClarityVersion: version}, off, nil

	case model.TxPayloadPoisonMicroblock:
		// two microblock headers, opaque to the core; skip by length prefix.
		_, off, err := readLengthPrefixed(raw, off)
		if err != nil {
			return model.TxPayload{}, off, err
		}
		return model.TxPayload{Kind: kind}, off, nil

	case model.TxPayloadCoinbase:
		if len(raw) < off+32 {
			return model.TxPayload{}, off, ErrTruncated
		}
		var payload [32]byte
		copy(payload[:], raw[off:off+32])
		off += 32
		return model.TxPayload{Kind: kind, CoinbasePayload: payload}, off, nil

	default:
		return model.TxPayload{}, off, fmt.Errorf("decode: unknown tx payload kind %d", kindByte)
	}
}

func readContractID(raw []byte, off int) (addr, name string, newOff int, err error) {
	if len(raw) < off+20 {
		return "", "", off, ErrTruncated
	}
	addr = fmt.Sprintf("%x", raw[off:off+20])
	off += 20
	name, off, err = readString1(raw, off)
	return addr, name, off, err
}

func readString1(raw []byte, off int) (string, int, error) {
	if len(raw) < off+1 {
		return "", off, ErrTruncated
	}
	n := int(raw[off])
	off++
	if len(raw) < off+n {
		return "", off, ErrTruncated
	}
	return string(raw[off : off+n]), off + n, nil
}
