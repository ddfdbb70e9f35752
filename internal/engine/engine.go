// Package engine owns the board: it executes every mutation, enforces WIP
// admission on moves, keeps the undo history, and writes each new state
// through to storage before reporting success.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/history"
	"taskboard/internal/journal"
	"taskboard/internal/storage"
)

// Engine serializes all board access behind one mutex: each operation sees
// and produces a complete, persisted state. Storage is written before the
// in-memory board advances, so a failed write leaves nothing half-applied.
type Engine struct {
	Config  *config.Config
	Store   storage.Store
	Journal *journal.Writer
	Now     func() time.Time

	mu      sync.Mutex
	board   board.Board
	history *history.History
}

// New builds an engine over an initial board. An initial board without
// columns is replaced by an empty board with the configured columns.
func New(cfg *config.Config, store storage.Store, initial board.Board) *Engine {
	if len(initial.Columns) == 0 {
		initial = board.New(cfg.ColumnIDs())
	}
	return &Engine{
		Config:  cfg,
		Store:   store,
		Now:     time.Now,
		board:   initial,
		history: history.New(cfg.HistoryDepth()),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// AddCard creates a card at the end of the target column (the configured
// default column when empty). The new card starts at Normal priority. Adds
// are not WIP-gated; only moves are subject to admission.
func (e *Engine) AddCard(ctx context.Context, text, column string) (board.Card, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return board.Card{}, board.ErrEmptyText
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if column == "" {
		column = e.Config.DefaultColumnID()
	}
	if !e.board.HasColumn(column) {
		return board.Card{}, board.ErrColumnNotFound
	}

	card := board.Card{
		ID:       uuid.NewString(),
		Text:     text,
		Priority: board.PriorityNormal,
		Created:  e.now().UTC(),
	}
	next := e.board.Clone()
	for i := range next.Columns {
		if next.Columns[i].ID == column {
			next.Columns[i].Cards = append(next.Columns[i].Cards, card)
			break
		}
	}
	if err := e.commit(ctx, next, journal.Entry{Op: journal.OpAdd, CardID: card.ID, Column: column, Detail: text}); err != nil {
		return board.Card{}, err
	}
	return card, nil
}

// CardUpdate carries the fields an update touches. Nil fields are left
// unchanged.
type CardUpdate struct {
	Text     *string
	Priority *board.Priority
}

// UpdateCard edits a card in place. An update that changes nothing is a
// no-op: nil error, no history entry, no storage write.
func (e *Engine) UpdateCard(ctx context.Context, id string, upd CardUpdate) (board.Card, error) {
	var newText string
	if upd.Text != nil {
		newText = strings.TrimSpace(*upd.Text)
		if newText == "" {
			return board.Card{}, board.ErrEmptyText
		}
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		return board.Card{}, board.ErrInvalidPriority
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	current, _, ok := e.board.Find(id)
	if !ok {
		return board.Card{}, board.ErrCardNotFound
	}
	changed := false
	if upd.Text != nil && newText != current.Text {
		current.Text = newText
		changed = true
	}
	if upd.Priority != nil && *upd.Priority != current.Priority {
		current.Priority = *upd.Priority
		changed = true
	}
	if !changed {
		return current, nil
	}

	next := e.board.Clone()
	for i := range next.Columns {
		for j := range next.Columns[i].Cards {
			if next.Columns[i].Cards[j].ID == id {
				next.Columns[i].Cards[j] = current
			}
		}
	}
	if err := e.commit(ctx, next, journal.Entry{Op: journal.OpUpdate, CardID: id, Detail: current.Text}); err != nil {
		return board.Card{}, err
	}
	return current, nil
}

// MoveCard relocates a card to the end of the target column, subject to the
// column's WIP limit. Moving a card onto its own column is a no-op and never
// fails, even when that column is full.
func (e *Engine) MoveCard(ctx context.Context, id, column string) (board.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.board.HasColumn(column) {
		return board.Card{}, board.ErrColumnNotFound
	}
	card, origin, ok := e.board.Find(id)
	if !ok {
		return board.Card{}, board.ErrCardNotFound
	}
	if origin == column {
		return card, nil
	}
	if !e.canAcceptLocked(column) {
		return board.Card{}, board.CapacityError{Column: column, Limit: e.Config.Limits()[column]}
	}

	next := e.board.Clone()
	for i := range next.Columns {
		switch next.Columns[i].ID {
		case origin:
			next.Columns[i].Cards = removeCard(next.Columns[i].Cards, id)
		case column:
			next.Columns[i].Cards = append(next.Columns[i].Cards, card)
		}
	}
	if err := e.commit(ctx, next, journal.Entry{Op: journal.OpMove, CardID: id, Column: column}); err != nil {
		return board.Card{}, err
	}
	return card, nil
}

// RemoveCard deletes a card permanently and returns it.
func (e *Engine) RemoveCard(ctx context.Context, id string) (board.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	card, origin, ok := e.board.Find(id)
	if !ok {
		return board.Card{}, board.ErrCardNotFound
	}
	next := e.board.Clone()
	for i := range next.Columns {
		if next.Columns[i].ID == origin {
			next.Columns[i].Cards = removeCard(next.Columns[i].Cards, id)
		}
	}
	if err := e.commit(ctx, next, journal.Entry{Op: journal.OpRemove, CardID: id, Column: origin, Detail: card.Text}); err != nil {
		return board.Card{}, err
	}
	return card, nil
}

// Undo replaces the board with the newest history snapshot. It reports false
// when there is nothing to undo. Undo itself is not undoable: the restored
// state is persisted without pushing a new entry.
func (e *Engine) Undo(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.history.Pop()
	if !ok {
		return false, nil
	}
	if err := e.persist(ctx, snap); err != nil {
		e.history.Push(snap)
		return false, err
	}
	e.board = snap
	e.record(journal.Entry{Op: journal.OpUndo})
	return true, nil
}

// CanAccept reports whether a move into the column would be admitted right
// now. Unknown columns accept nothing.
func (e *Engine) CanAccept(column string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.board.HasColumn(column) {
		return false
	}
	return e.canAcceptLocked(column)
}

func (e *Engine) canAcceptLocked(column string) bool {
	limit, limited := e.Config.Limits()[column]
	if !limited {
		return true
	}
	return e.board.Count(column) < limit
}

// Board returns a deep copy of the current state.
func (e *Engine) Board() board.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone()
}

// Serialize returns the compact wire form of the current board.
func (e *Engine) Serialize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return board.Encode(e.board)
}

// Export returns the indented wire form served to humans.
func (e *Engine) Export() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return board.EncodePretty(e.board)
}

// Import replaces the whole board from a snapshot blob. A blob that does not
// decode leaves the board untouched. Imports are not undoable.
func (e *Engine) Import(ctx context.Context, blob []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := board.Decode(blob, e.Config.ColumnIDs())
	if err != nil {
		return err
	}
	if err := e.persist(ctx, next); err != nil {
		return err
	}
	e.board = next
	e.record(journal.Entry{Op: journal.OpImport, Detail: fmt.Sprintf("%d cards", next.Size())})
	return nil
}

// ColumnInfo describes one column for listings: configured title and limit
// plus the live card count.
type ColumnInfo struct {
	ID    string
	Title string
	Limit *int
	Count int
}

// Columns returns per-column configuration and occupancy in board order.
func (e *Engine) Columns() []ColumnInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	infos := make([]ColumnInfo, 0, len(e.Config.Columns))
	for _, col := range e.Config.Columns {
		info := ColumnInfo{
			ID:    col.ID,
			Title: e.Config.Title(col.ID),
			Count: e.board.Count(col.ID),
		}
		if col.Limit != nil {
			limit := *col.Limit
			info.Limit = &limit
		}
		infos = append(infos, info)
	}
	return infos
}

// Activity returns the newest n journal entries, oldest first. Without an
// attached journal it returns nothing.
func (e *Engine) Activity(n int) ([]journal.Entry, error) {
	if e.Journal == nil {
		return []journal.Entry{}, nil
	}
	return e.Journal.Tail(n)
}

// HistoryLen reports how many undo steps are available.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// commit persists next, then advances the in-memory board and pushes the
// prior state onto the history. Persisting first keeps the op atomic: on
// write failure the board and history are exactly as before.
func (e *Engine) commit(ctx context.Context, next board.Board, entry journal.Entry) error {
	if err := e.persist(ctx, next); err != nil {
		return err
	}
	e.history.Push(e.board)
	e.board = next
	e.record(entry)
	return nil
}

func (e *Engine) persist(ctx context.Context, b board.Board) error {
	data, err := board.Encode(b)
	if err != nil {
		return err
	}
	if err := e.Store.Put(ctx, storage.StateKey, data); err != nil {
		return fmt.Errorf("persist board: %w", err)
	}
	return nil
}

// record appends to the journal when one is attached. The journal reports,
// it never gates: failures are logged and the operation stands.
func (e *Engine) record(entry journal.Entry) {
	if e.Journal == nil {
		return
	}
	entry.TS = e.now().UTC()
	if err := e.Journal.Append(entry); err != nil {
		log.Printf("journal append failed: %v", err)
	}
}

func removeCard(cards []board.Card, id string) []board.Card {
	out := cards[:0]
	for _, c := range cards {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
