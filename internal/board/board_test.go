package board_test

import (
	"errors"
	"testing"
	"time"

	"taskboard/internal/board"
)

func sampleBoard() board.Board {
	b := board.New([]string{"backlog", "todo", "done"})
	b.Columns[0].Cards = []board.Card{
		{ID: "c1", Text: "write docs", Priority: board.PriorityNormal, Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "c2", Text: "fix login", Priority: board.PriorityHigh, Created: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC)},
	}
	b.Columns[1].Cards = []board.Card{
		{ID: "c3", Text: "ship it", Priority: board.PriorityLow, Created: time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC)},
	}
	return b
}

func TestCloneIsIndependent(t *testing.T) {
	orig := sampleBoard()
	clone := orig.Clone()
	clone.Columns[0].Cards[0].Text = "mutated"
	clone.Columns[1].Cards = append(clone.Columns[1].Cards, board.Card{ID: "c9"})
	if orig.Columns[0].Cards[0].Text != "write docs" {
		t.Fatalf("clone mutation leaked into original card")
	}
	if len(orig.Columns[1].Cards) != 1 {
		t.Fatalf("clone append leaked into original column")
	}
}

func TestFind(t *testing.T) {
	b := sampleBoard()
	card, col, ok := b.Find("c3")
	if !ok || col != "todo" || card.Text != "ship it" {
		t.Fatalf("find c3 = %+v in %q, ok=%v", card, col, ok)
	}
	if _, _, ok := b.Find("nope"); ok {
		t.Fatalf("found a card that does not exist")
	}
}

func TestCounts(t *testing.T) {
	b := sampleBoard()
	if got := b.Count("backlog"); got != 2 {
		t.Fatalf("backlog count = %d, want 2", got)
	}
	if got := b.Count("done"); got != 0 {
		t.Fatalf("done count = %d, want 0", got)
	}
	if got := b.Size(); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}
	if !b.HasColumn("todo") || b.HasColumn("archive") {
		t.Fatalf("column membership wrong")
	}
}

func TestParsePriority(t *testing.T) {
	for _, s := range []string{"High", "Normal", "Low"} {
		p, err := board.ParsePriority(s)
		if err != nil || string(p) != s {
			t.Fatalf("parse %q: %v", s, err)
		}
	}
	_, err := board.ParsePriority("urgent")
	if !errors.Is(err, board.ErrInvalidPriority) {
		t.Fatalf("parse urgent: got %v, want ErrInvalidPriority", err)
	}
	_, err = board.ParsePriority("high")
	if err == nil {
		t.Fatalf("priority comparison should be case sensitive")
	}
}
