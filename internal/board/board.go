package board

import "time"

// Card is one unit of work on the board. ID and Created are assigned once at
// creation and never change; Text and Priority are mutable.
type Card struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Priority Priority  `json:"priority" enum:"High,Normal,Low"`
	Created  time.Time `json:"created" format:"date-time"`
}

// Column holds the ordered cards of one workflow stage. The stage set and its
// order come from configuration, not from the data itself.
type Column struct {
	ID    string `json:"id"`
	Cards []Card `json:"cards"`
}

// Board maps every configured column to its ordered card sequence. A card
// belongs to exactly one column and its id is unique across the whole board.
type Board struct {
	Columns []Column `json:"columns"`
}

// New returns a board with the given columns, all empty.
func New(columnIDs []string) Board {
	cols := make([]Column, 0, len(columnIDs))
	for _, id := range columnIDs {
		cols = append(cols, Column{ID: id, Cards: []Card{}})
	}
	return Board{Columns: cols}
}

// Clone returns a deep copy sharing no memory with the receiver.
func (b Board) Clone() Board {
	out := Board{Columns: make([]Column, len(b.Columns))}
	for i, col := range b.Columns {
		cards := make([]Card, len(col.Cards))
		copy(cards, col.Cards)
		out.Columns[i] = Column{ID: col.ID, Cards: cards}
	}
	return out
}

// Find returns a copy of the card with the given id and the id of the column
// holding it.
func (b Board) Find(cardID string) (Card, string, bool) {
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == cardID {
				return c, col.ID, true
			}
		}
	}
	return Card{}, "", false
}

// HasColumn reports whether the board carries a column with the given id.
func (b Board) HasColumn(columnID string) bool {
	for _, col := range b.Columns {
		if col.ID == columnID {
			return true
		}
	}
	return false
}

// Count returns the number of cards in the given column, 0 if unknown.
func (b Board) Count(columnID string) int {
	for _, col := range b.Columns {
		if col.ID == columnID {
			return len(col.Cards)
		}
	}
	return 0
}

// Size returns the total number of cards on the board.
func (b Board) Size() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Cards)
	}
	return n
}

// ColumnIDs returns the column ids in board order.
func (b Board) ColumnIDs() []string {
	ids := make([]string, 0, len(b.Columns))
	for _, col := range b.Columns {
		ids = append(ids, col.ID)
	}
	return ids
}
