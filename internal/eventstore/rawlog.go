package eventstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"stacks-event-ingest/internal/model"
)

// rawLogHeader marks the export format (spec section 4.6): cmd/eventreplay
// export writes it as the first line of every export file. Readers skip it,
// like any line starting with "#".
const rawLogHeader = "# stacks-event-replay v1"

// FileRawEventLog is an append-only TSV journal of every inbound request,
// one (seq, path, payload) record per line, persisted before the owning
// handler runs (invariant P5). The append-then-replay shape is grounded on
// core's Ledger WAL (ledger.go: NewLedger opens a WAL file in append mode
// and replays it line-by-line with bufio.Scanner on startup).
type FileRawEventLog struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	seq  uint64
}

// OpenFileRawEventLog opens (creating if absent) the log at path in append
// mode and seeds the sequence counter from the highest seq already present.
func OpenFileRawEventLog(path string) (*FileRawEventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open raw log: %w", err)
	}
	last, err := lastSeq(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FileRawEventLog{f: f, w: bufio.NewWriter(f), seq: last}, nil
}

func lastSeq(path string) (uint64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("eventstore: scan raw log: %w", err)
	}
	defer f.Close()

	var last uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseRecordLine(line)
		if err != nil {
			continue
		}
		if rec.Seq > last {
			last = rec.Seq
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("eventstore: scan raw log: %w", err)
	}
	return last, nil
}

// StoreRawEventRequest appends one record and returns its sequence number.
// A JSON payload is compacted first; a payload that is not JSON is stored as
// received unless it contains a tab or line break, which is rejected.
func (l *FileRawEventLog) StoreRawEventRequest(ctx context.Context, path string, payload []byte) (uint64, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err == nil {
		payload = compact.Bytes()
	} else if bytes.ContainsAny(payload, "\t\r\n") {
		return 0, fmt.Errorf("eventstore: raw payload for %s is not JSON and contains a tab or line break", path)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	seq := l.seq
	line := formatRecordLine(model.RawEventRecord{Seq: seq, Path: path, Payload: payload})
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return 0, fmt.Errorf("eventstore: append raw log: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return 0, fmt.Errorf("eventstore: flush raw log: %w", err)
	}
	return seq, nil
}

// Close flushes and closes the underlying file.
func (l *FileRawEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// formatRecordLine writes the payload bytes as they are, with no further
// encoding. StoreRawEventRequest has already compacted JSON payloads, so the
// payload holds no tab or line break that could split the record line.
func formatRecordLine(rec model.RawEventRecord) string {
	return fmt.Sprintf("%d\t%s\t%s", rec.Seq, rec.Path, rec.Payload)
}

func parseRecordLine(line string) (model.RawEventRecord, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return model.RawEventRecord{}, fmt.Errorf("eventstore: malformed record line %q", line)
	}
	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return model.RawEventRecord{}, fmt.Errorf("eventstore: bad seq in record line: %w", err)
	}
	return model.RawEventRecord{Seq: seq, Path: parts[1], Payload: []byte(parts[2])}, nil
}

// ExportRecords streams every record in ascending seq order to fn. Export
// refuses to overwrite an existing destination file unless overwrite=true
// (spec section 4.6); that check is the caller's responsibility (see
// cmd/eventreplay) since it operates on the destination, not this log.
func ExportRecords(path string, fn func(model.RawEventRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("eventstore: open raw log for export: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseRecordLine(line)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// RawLogHeader returns the export format marker line.
func RawLogHeader() string { return rawLogHeader }
