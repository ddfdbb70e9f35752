// Package journal keeps an append-only activity ledger next to the board
// data. One JSON object per line; readers tolerate torn trailing lines.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const FileName = "journal.jsonl"

// Operation names recorded in the ledger.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpMove   = "move"
	OpRemove = "remove"
	OpUndo   = "undo"
	OpImport = "import"
)

type Entry struct {
	TS     time.Time `json:"ts"`
	Op     string    `json:"op"`
	CardID string    `json:"card_id,omitempty"`
	Column string    `json:"column,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

type Writer struct {
	Now func() time.Time

	mu   sync.Mutex
	path string
}

// Open returns a writer appending to the journal file in dir.
func Open(dir string) *Writer {
	return &Writer{path: filepath.Join(dir, FileName)}
}

// Append writes one entry. The timestamp is filled from the writer's clock
// when unset.
func (w *Writer) Append(e Entry) error {
	if e.TS.IsZero() {
		now := w.Now
		if now == nil {
			now = time.Now
		}
		e.TS = now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Tail returns the newest n entries in chronological order. A missing
// journal yields an empty slice; lines that do not parse are skipped.
func (w *Writer) Tail(n int) ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
