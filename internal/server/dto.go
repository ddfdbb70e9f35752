package server

import (
	"time"

	"taskboard/internal/board"
	"taskboard/internal/engine"
)

// Request payloads

type CreateCardRequest struct {
	Text   string `json:"text"`
	Column string `json:"column,omitempty"`
}

type UpdateCardRequest struct {
	Text     *string `json:"text,omitempty"`
	Priority *string `json:"priority,omitempty" enum:"High,Normal,Low"`
}

type MoveCardRequest struct {
	Column string `json:"column"`
}

type SetThemeRequest struct {
	Theme string `json:"theme" enum:"dark,light"`
}

// Response payloads

type CardResponse struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Priority string    `json:"priority" enum:"High,Normal,Low"`
	Created  time.Time `json:"created" format:"date-time"`
	Column   string    `json:"column"`
}

type BoardColumnResponse struct {
	ID    string         `json:"id"`
	Title string         `json:"title"`
	Limit *int           `json:"limit,omitempty"`
	Count int            `json:"count"`
	Cards []CardResponse `json:"cards"`
}

type BoardResponse struct {
	Columns []BoardColumnResponse `json:"columns"`
}

type ColumnStatusResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Limit     *int   `json:"limit,omitempty"`
	Count     int    `json:"count"`
	CanAccept bool   `json:"can_accept"`
}

type UndoResponse struct {
	Undone bool `json:"undone"`
}

type ThemeResponse struct {
	Theme string `json:"theme" enum:"dark,light"`
}

type ActivityEntryResponse struct {
	TS     time.Time `json:"ts" format:"date-time"`
	Op     string    `json:"op" enum:"add,update,move,remove,undo,import"`
	CardID string    `json:"card_id,omitempty"`
	Column string    `json:"column,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func cardResponse(c board.Card, column string) CardResponse {
	return CardResponse{
		ID:       c.ID,
		Text:     c.Text,
		Priority: string(c.Priority),
		Created:  c.Created,
		Column:   column,
	}
}

func boardResponse(b board.Board, infos []engine.ColumnInfo) BoardResponse {
	byID := make(map[string]engine.ColumnInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}
	out := BoardResponse{Columns: make([]BoardColumnResponse, 0, len(b.Columns))}
	for _, col := range b.Columns {
		info := byID[col.ID]
		cards := make([]CardResponse, 0, len(col.Cards))
		for _, c := range col.Cards {
			cards = append(cards, cardResponse(c, col.ID))
		}
		out.Columns = append(out.Columns, BoardColumnResponse{
			ID:    col.ID,
			Title: info.Title,
			Limit: info.Limit,
			Count: len(col.Cards),
			Cards: cards,
		})
	}
	return out
}
