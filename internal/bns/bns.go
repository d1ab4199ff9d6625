// Package bns implements the Name-System Extractor (spec section 4.2):
// recognizing the two well-known BNS contract identifiers and deriving
// name/namespace/subdomain records from contract-log events, contract-call
// payloads (the zonefile-less renewal fallback), and attachment metadata.
package bns

import (
	"encoding/hex"
	"fmt"
	"strings"

	"stacks-event-ingest/internal/decode"
	"stacks-event-ingest/internal/model"
)

// Mainnet and testnet BNS contract identifiers (spec section 4.2, exhaustive
// per spec section 6).
const (
	MainnetContract = "SP000000000000000000002Q6VF78.bns"
	TestnetContract = "ST000000000000000000002AMW42H.bns"
)

// IsBNSContract reports whether identifier names one of the two recognized
// BNS contracts.
func IsBNSContract(identifier string) bool {
	return identifier == MainnetContract || identifier == TestnetContract
}

// recognizedTopics is the exhaustive topic set of spec section 6. Any other
// topic on a BNS contract log is ignored without error.
var recognizedTopics = map[string]bool{
	"name-register":    true,
	"name-update":      true,
	"name-transfer":    true,
	"name-renewal":     true,
	"name-revoke":      true,
	"namespace-ready":  true,
	"namespace-reveal": true,
}

// FromContractLog derives a name/namespace record from one contract-log
// event, if the event's contract is a recognized BNS contract and its topic
// is recognized. Returns ok=false (not an error) for anything else, per
// spec section 4.2: "Unknown topics for the BNS contracts are ignored
// without error."
func FromContractLog(ev model.Event, blockHeight uint32) (model.BnsRecord, bool, error) {
	if ev.Kind != model.EventSmartContractLog {
		return model.BnsRecord{}, false, nil
	}
	if !IsBNSContract(ev.ContractIdentifier) {
		return model.BnsRecord{}, false, nil
	}
	if !recognizedTopics[ev.Topic] {
		return model.BnsRecord{}, false, nil
	}

	val, _, err := decode.DecodeClarityValue(ev.Value)
	if err != nil {
		return model.BnsRecord{}, false, fmt.Errorf("bns: decode log value for topic %s: %w", ev.Topic, err)
	}

	rec := model.BnsRecord{
		Kind:        model.BnsKindName,
		TxID:        ev.TxID,
		BlockHeight: blockHeight,
		Canonical:   true,
	}
	if ns := namespaceTopic(ev.Topic); ns {
		rec.Kind = model.BnsKindNamespace
	}

	if name, ok := stringField(val, "name"); ok {
		rec.Name = name
	}
	if ns, ok := stringField(val, "namespace"); ok {
		rec.Namespace = ns
	}
	if owner, ok := principalField(val, "owner"); ok {
		rec.Address = owner
	}
	if expire, ok := uintField(val, "expire"); ok {
		rec.Expire = expire
	}
	if zf, ok := bufferField(val, "zonefile-hash"); ok {
		rec.ZonefileHash = hex.EncodeToString(zf)
	}

	return rec, true, nil
}

func namespaceTopic(topic string) bool {
	return topic == "namespace-ready" || topic == "namespace-reveal"
}

// RenewalFallback implements spec section 4.2's edge case (P6): a
// contract-call to name-renewal whose events contain no name-renewal log
// (the node omits the log when the renewal carries no zonefile hash). It
// synthesizes a name record from the call's function arguments.
func RenewalFallback(tx model.Transaction, blockHeight uint32) (model.BnsRecord, bool, error) {
	if tx.Payload.Kind != model.TxPayloadContractCall {
		return model.BnsRecord{}, false, nil
	}
	contractID := tx.Payload.ContractAddress + "." + tx.Payload.ContractName
	if !IsBNSContract(contractID) {
		return model.BnsRecord{}, false, nil
	}
	if tx.Payload.FunctionName != "name-renewal" {
		return model.BnsRecord{}, false, nil
	}
	for _, ev := range tx.Events {
		if ev.Kind == model.EventSmartContractLog && ev.Topic == "name-renewal" {
			// A log was emitted — this is not the no-log edge case.
			return model.BnsRecord{}, false, nil
		}
	}

	// name-renewal(namespace, name, ...) — namespace and name are the first
	// two ASCII-string arguments.
	args := tx.Payload.FunctionArgsRaw
	if len(args) < 2 {
		return model.BnsRecord{}, false, fmt.Errorf("bns: name-renewal call with too few arguments (%d)", len(args))
	}
	namespaceVal, _, err := decode.DecodeClarityValue(args[0])
	if err != nil {
		return model.BnsRecord{}, false, fmt.Errorf("bns: decode renewal namespace arg: %w", err)
	}
	nameVal, _, err := decode.DecodeClarityValue(args[1])
	if err != nil {
		return model.BnsRecord{}, false, fmt.Errorf("bns: decode renewal name arg: %w", err)
	}
	namespace, err := namespaceVal.AsString()
	if err != nil {
		return model.BnsRecord{}, false, fmt.Errorf("bns: renewal namespace arg: %w", err)
	}
	name, err := nameVal.AsString()
	if err != nil {
		return model.BnsRecord{}, false, fmt.Errorf("bns: renewal name arg: %w", err)
	}

	rec := model.BnsRecord{
		Kind:        model.BnsKindName,
		Name:        name,
		Namespace:   namespace,
		Address:     tx.SenderAddress,
		TxID:        tx.TxID,
		BlockHeight: blockHeight,
		Canonical:   true,
	}
	return rec, true, nil
}

// recognizedAttachmentOps is the exhaustive op set of spec section 6.
var recognizedAttachmentOps = map[string]bool{
	"register": true, "update": true, "transfer": true, "renewal": true,
}

// AttachmentMetadata decodes an attachment's metadata tuple into
// {op, name, namespace}, per spec section 4.2. Returns ok=false when the
// metadata has no op field or the op is not a recognized one. It sees only
// the metadata, so it does not check which contract the attachment came from.
func AttachmentMetadata(metadata []byte) (op, name, namespace string, ok bool, err error) {
	val, _, err := decode.DecodeClarityValue(metadata)
	if err != nil {
		return "", "", "", false, fmt.Errorf("bns: decode attachment metadata: %w", err)
	}
	opVal, okOp := stringField(val, "op")
	if !okOp || !recognizedAttachmentOps[strings.ToLower(opVal)] {
		return "", "", "", false, nil
	}
	n, _ := stringField(val, "name")
	ns, _ := stringField(val, "namespace")
	return opVal, n, ns, true, nil
}

func stringField(v decode.ClarityValue, name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok {
		return "", false
	}
	s, err := f.AsString()
	if err != nil {
		return "", false
	}
	return s, true
}

func uintField(v decode.ClarityValue, name string) (uint64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	n, err := f.AsUint64()
	if err != nil {
		return 0, false
	}
	return n, true
}

func bufferField(v decode.ClarityValue, name string) ([]byte, bool) {
	f, ok := v.Field(name)
	if !ok || f.Type != decode.ClarityBuffer {
		return nil, false
	}
	return f.Buffer, true
}

func principalField(v decode.ClarityValue, name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok || f.Type != decode.ClarityPrincipal {
		return "", false
	}
	return f.Principal, true
}
