package eventstore

import (
	"context"
	"fmt"
	"testing"

	"stacks-event-ingest/internal/model"
	"stacks-event-ingest/internal/testutil"
)

func TestFileRawEventLogAppendAndExport(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("events.tsv")

	log, err := OpenFileRawEventLog(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	seqs := make([]uint64, 0, 3)
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf(`{"i":%d}`, i))
		seq, err := log.StoreRawEventRequest(context.Background(), "/new_block", payload)
		if err != nil {
			t.Fatalf("store failed: %v", err)
		}
		seqs = append(seqs, seq)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("expected sequential seqs 1,2,3, got %v", seqs)
	}

	var got []model.RawEventRecord
	if err := ExportRecords(path, func(rec model.RawEventRecord) error {
		got = append(got, rec)
		return nil
	}); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 exported records, got %d", len(got))
	}
	for i, rec := range got {
		want := fmt.Sprintf(`{"i":%d}`, i)
		if rec.Seq != uint64(i+1) || rec.Path != "/new_block" || string(rec.Payload) != want {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
	}
}

func TestFileRawEventLogResumesSequence(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("events.tsv")

	log, err := OpenFileRawEventLog(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := log.StoreRawEventRequest(context.Background(), "/new_block", []byte("a")); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenFileRawEventLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	seq, err := reopened.StoreRawEventRequest(context.Background(), "/new_block", []byte("b"))
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected sequence to resume at 2, got %d", seq)
	}
}
