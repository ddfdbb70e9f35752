package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// The wire shape is a single JSON object mapping column id to its ordered
// card list:
//
//	{ "<columnId>": [ {"id","text","priority","created"}, ... ], ... }
//
// Encode emits columns in board order so snapshots are stable and diffable.

// Encode serializes the board into its compact wire form.
func Encode(b Board) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range b.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.ID)
		if err != nil {
			return nil, fmt.Errorf("encode column id %q: %w", col.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		cards := col.Cards
		if cards == nil {
			cards = []Card{}
		}
		data, err := json.Marshal(cards)
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", col.ID, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodePretty serializes the board indented for humans, the form used by
// export downloads.
func EncodePretty(b Board) ([]byte, error) {
	data, err := Encode(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// wireCard tolerates an absent priority (defaulted to Normal) while still
// rejecting values outside the enumeration.
type wireCard struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Priority string    `json:"priority"`
	Created  time.Time `json:"created"`
}

// Decode parses a snapshot against the configured column set. Columns absent
// from the blob come back empty. A blob that is not board-shaped (non-object
// data, an unknown column key, a missing or duplicate card id, a priority
// outside the enumeration, an unparseable timestamp) is rejected as a whole
// with a MalformedError.
func Decode(data []byte, columnIDs []string) (Board, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Board{}, MalformedError{Reason: "not a column/cards object", Err: err}
	}
	known := make(map[string]bool, len(columnIDs))
	for _, id := range columnIDs {
		known[id] = true
	}
	for key := range raw {
		if !known[key] {
			return Board{}, MalformedError{Reason: fmt.Sprintf("unknown column %q", key)}
		}
	}

	b := New(columnIDs)
	seen := make(map[string]string) // card id -> column id
	for i := range b.Columns {
		msg, ok := raw[b.Columns[i].ID]
		if !ok {
			continue
		}
		var cards []wireCard
		if err := json.Unmarshal(msg, &cards); err != nil {
			return Board{}, MalformedError{Reason: fmt.Sprintf("column %q", b.Columns[i].ID), Err: err}
		}
		for _, wc := range cards {
			if wc.ID == "" {
				return Board{}, MalformedError{Reason: fmt.Sprintf("card without id in column %q", b.Columns[i].ID)}
			}
			if prev, dup := seen[wc.ID]; dup {
				return Board{}, MalformedError{Reason: fmt.Sprintf("card id %q appears in columns %q and %q", wc.ID, prev, b.Columns[i].ID)}
			}
			seen[wc.ID] = b.Columns[i].ID
			p := PriorityNormal
			if wc.Priority != "" {
				parsed, err := ParsePriority(wc.Priority)
				if err != nil {
					return Board{}, MalformedError{Reason: fmt.Sprintf("card %q", wc.ID), Err: err}
				}
				p = parsed
			}
			b.Columns[i].Cards = append(b.Columns[i].Cards, Card{
				ID:       wc.ID,
				Text:     wc.Text,
				Priority: p,
				Created:  wc.Created.UTC(),
			})
		}
	}
	return b, nil
}
