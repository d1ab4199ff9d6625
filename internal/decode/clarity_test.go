package decode

import "testing"

func encodeUint(v uint64) []byte {
	buf := make([]byte, 17)
	buf[0] = byte(ClarityUInt)
	for i := 0; i < 8; i++ {
		buf[16-i] = byte(v >> (8 * i))
	}
	return buf
}

func TestDecodeClarityUint(t *testing.T) {
	buf := encodeUint(42)
	v, n, err := DecodeClarityValue(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != 17 {
		t.Fatalf("expected 17 bytes consumed, got %d", n)
	}
	got, err := v.AsUint64()
	if err != nil {
		t.Fatalf("AsUint64 failed: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestDecodeClarityTruncated(t *testing.T) {
	buf := []byte{byte(ClarityUInt), 0x00, 0x01}
	if _, _, err := DecodeClarityValue(buf); err != ErrClarityTruncated {
		t.Fatalf("expected ErrClarityTruncated, got %v", err)
	}
}

func TestDecodeClarityTuple(t *testing.T) {
	name := encodeUint(100)
	// tuple with one field "amount" -> uint 100
	buf := []byte{byte(ClarityTuple), 0, 0, 0, 1, 6}
	buf = append(buf, []byte("amount")...)
	buf = append(buf, name...)

	v, n, err := DecodeClarityValue(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected %d bytes consumed, got %d", len(buf), n)
	}
	field, ok := v.Field("amount")
	if !ok {
		t.Fatalf("expected amount field present")
	}
	got, err := field.AsUint64()
	if err != nil || got != 100 {
		t.Fatalf("expected amount=100, got %d err=%v", got, err)
	}
}

func TestDecodeClarityOptionalNone(t *testing.T) {
	buf := []byte{byte(ClarityOptionalNone)}
	v, n, err := DecodeClarityValue(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != 1 || v.Type != ClarityOptionalNone {
		t.Fatalf("unexpected result: %+v n=%d", v, n)
	}
}

func TestDecodeClarityUnknownTag(t *testing.T) {
	buf := []byte{0xFF}
	if _, _, err := DecodeClarityValue(buf); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}
