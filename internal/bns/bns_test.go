package bns

import (
	"encoding/binary"
	"testing"

	"stacks-event-ingest/internal/decode"
	"stacks-event-ingest/internal/model"
)

func encodeUint(v uint64) []byte {
	buf := make([]byte, 17)
	buf[0] = byte(decode.ClarityUInt)
	binary.BigEndian.PutUint64(buf[9:17], v)
	return buf
}

func encodeString(s string) []byte {
	buf := []byte{byte(decode.ClarityStringASCII)}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(s)))
	buf = append(buf, lenBuf...)
	buf = append(buf, s...)
	return buf
}

func encodePrincipal(s string) []byte {
	buf := []byte{byte(decode.ClarityPrincipal)}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(s)))
	buf = append(buf, lenBuf...)
	buf = append(buf, s...)
	return buf
}

func encodeTuple(fields map[string][]byte) []byte {
	buf := []byte{byte(decode.ClarityTuple)}
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, uint32(len(fields)))
	buf = append(buf, countBuf...)
	for name, val := range fields {
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
		buf = append(buf, val...)
	}
	return buf
}

func TestFromContractLogNameRegister(t *testing.T) {
	tuple := encodeTuple(map[string][]byte{
		"name":      encodeString("alice"),
		"namespace": encodeString("id"),
		"owner":     encodePrincipal("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE"),
		"expire":    encodeUint(1000),
	})
	ev := model.Event{
		Kind:               model.EventSmartContractLog,
		ContractIdentifier: MainnetContract,
		Topic:              "name-register",
		Value:              tuple,
		TxID:               "0x01",
	}
	rec, ok, err := FromContractLog(ev, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if rec.Name != "alice" || rec.Namespace != "id" {
		t.Fatalf("unexpected name/namespace: %+v", rec)
	}
	if rec.Address != "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKPVKG2CE" {
		t.Fatalf("unexpected owner: %q", rec.Address)
	}
	if rec.Expire != 1000 {
		t.Fatalf("unexpected expire: %d", rec.Expire)
	}
	if rec.Kind != model.BnsKindName {
		t.Fatalf("expected BnsKindName, got %v", rec.Kind)
	}
}

func TestFromContractLogNamespaceReady(t *testing.T) {
	tuple := encodeTuple(map[string][]byte{
		"namespace": encodeString("id"),
	})
	ev := model.Event{
		Kind:               model.EventSmartContractLog,
		ContractIdentifier: TestnetContract,
		Topic:              "namespace-ready",
		Value:              tuple,
	}
	rec, ok, err := FromContractLog(ev, 1)
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if rec.Kind != model.BnsKindNamespace {
		t.Fatalf("expected BnsKindNamespace, got %v", rec.Kind)
	}
}

func TestFromContractLogIgnoresUnknownTopic(t *testing.T) {
	ev := model.Event{
		Kind:               model.EventSmartContractLog,
		ContractIdentifier: MainnetContract,
		Topic:              "print",
		Value:              []byte{byte(decode.ClarityOptionalNone)},
	}
	_, ok, err := FromContractLog(ev, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown topic to be ignored")
	}
}

func TestFromContractLogIgnoresNonBNSContract(t *testing.T) {
	ev := model.Event{
		Kind:               model.EventSmartContractLog,
		ContractIdentifier: "SP000000000000000000002Q6VF78.pox",
		Topic:              "name-register",
		Value:              []byte{byte(decode.ClarityOptionalNone)},
	}
	_, ok, err := FromContractLog(ev, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected non-BNS contract log to be ignored")
	}
}

func TestRenewalFallbackNoLog(t *testing.T) {
	tx := model.Transaction{
		TxID:          "0x02",
		SenderAddress: "SP3OWNER",
		Payload: model.TxPayload{
			Kind:            model.TxPayloadContractCall,
			ContractAddress: "SP000000000000000000002Q6VF78",
			ContractName:    "bns",
			FunctionName:    "name-renewal",
			FunctionArgsRaw: [][]byte{encodeString("id"), encodeString("alice")},
		},
	}
	rec, ok, err := RenewalFallback(tx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true for no-log renewal")
	}
	if rec.Name != "alice" || rec.Namespace != "id" || rec.Address != "SP3OWNER" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRenewalFallbackSkippedWhenLogPresent(t *testing.T) {
	tx := model.Transaction{
		Payload: model.TxPayload{
			Kind:            model.TxPayloadContractCall,
			ContractAddress: "SP000000000000000000002Q6VF78",
			ContractName:    "bns",
			FunctionName:    "name-renewal",
			FunctionArgsRaw: [][]byte{encodeString("id"), encodeString("alice")},
		},
		Events: []model.Event{
			{Kind: model.EventSmartContractLog, Topic: "name-renewal"},
		},
	}
	_, ok, err := RenewalFallback(tx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected fallback to be skipped when a log is present")
	}
}

func TestRenewalFallbackIgnoresOtherCalls(t *testing.T) {
	tx := model.Transaction{
		Payload: model.TxPayload{
			Kind:            model.TxPayloadContractCall,
			ContractAddress: "SP000000000000000000002Q6VF78",
			ContractName:    "bns",
			FunctionName:    "name-register",
		},
	}
	_, ok, err := RenewalFallback(tx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected non-renewal call to be ignored")
	}
}

func TestAttachmentMetadata(t *testing.T) {
	tuple := encodeTuple(map[string][]byte{
		"op":        encodeString("register"),
		"name":      encodeString("bob"),
		"namespace": encodeString("id"),
	})
	op, name, namespace, ok, err := AttachmentMetadata(tuple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if op != "register" || name != "bob" || namespace != "id" {
		t.Fatalf("unexpected metadata: op=%q name=%q namespace=%q", op, name, namespace)
	}
}

func TestAttachmentMetadataUnrecognizedOp(t *testing.T) {
	tuple := encodeTuple(map[string][]byte{
		"op": encodeString("delete"),
	})
	_, _, _, ok, err := AttachmentMetadata(tuple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected unrecognized op to be rejected")
	}
}

func TestIsBNSContract(t *testing.T) {
	if !IsBNSContract(MainnetContract) || !IsBNSContract(TestnetContract) {
		t.Fatalf("expected both known identifiers to be recognized")
	}
	if IsBNSContract("SP000000000000000000002Q6VF78.pox") {
		t.Fatalf("expected unrelated contract to be rejected")
	}
}
