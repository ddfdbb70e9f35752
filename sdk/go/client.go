package taskboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Taskboard HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v1",
		Timeout:  10 * time.Second,
	}
}

// Card represents the API card model.
type Card struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
	Created  string `json:"created"`
	Column   string `json:"column"`
}

// BoardColumn is one column of a board snapshot.
type BoardColumn struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Limit *int   `json:"limit,omitempty"`
	Count int    `json:"count"`
	Cards []Card `json:"cards"`
}

// Board is a full board snapshot.
type Board struct {
	Columns []BoardColumn `json:"columns"`
}

// ColumnStatus reports occupancy and admission for one column.
type ColumnStatus struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Limit     *int   `json:"limit,omitempty"`
	Count     int    `json:"count"`
	CanAccept bool   `json:"can_accept"`
}

// ActivityEntry is one line of the operation journal.
type ActivityEntry struct {
	TS     string `json:"ts"`
	Op     string `json:"op"`
	CardID string `json:"card_id,omitempty"`
	Column string `json:"column,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AddCard creates a card; an empty column targets the configured default.
func (c *Client) AddCard(ctx context.Context, text, column string) (Card, error) {
	body := map[string]any{"text": text}
	if column != "" {
		body["column"] = column
	}
	var resp Card
	err := c.do(ctx, http.MethodPost, c.apiPath("cards"), body, &resp)
	return resp, err
}

// UpdateCard edits the text and/or priority of a card. Nil fields are left
// unchanged.
func (c *Client) UpdateCard(ctx context.Context, id string, text, priority *string) (Card, error) {
	body := map[string]any{}
	if text != nil {
		body["text"] = *text
	}
	if priority != nil {
		body["priority"] = *priority
	}
	var resp Card
	err := c.do(ctx, http.MethodPatch, c.apiPath("cards/"+id), body, &resp)
	return resp, err
}

// MoveCard moves a card to another column.
func (c *Client) MoveCard(ctx context.Context, id, column string) (Card, error) {
	var resp Card
	err := c.do(ctx, http.MethodPost, c.apiPath("cards/"+id+"/move"), map[string]any{"column": column}, &resp)
	return resp, err
}

// RemoveCard deletes a card.
func (c *Client) RemoveCard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apiPath("cards/"+id), nil, nil)
}

// Undo reverts the most recent change; false means nothing was left to undo.
func (c *Client) Undo(ctx context.Context) (bool, error) {
	var resp struct {
		Undone bool `json:"undone"`
	}
	err := c.do(ctx, http.MethodPost, c.apiPath("undo"), nil, &resp)
	return resp.Undone, err
}

// Snapshot returns the full board.
func (c *Client) Snapshot(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, c.apiPath("board"), nil, &resp)
	return resp, err
}

// Columns returns occupancy and admission per column.
func (c *Client) Columns(ctx context.Context) ([]ColumnStatus, error) {
	var resp []ColumnStatus
	err := c.do(ctx, http.MethodGet, c.apiPath("columns"), nil, &resp)
	return resp, err
}

// ExportBoard downloads the pretty-printed snapshot document.
func (c *Client) ExportBoard(ctx context.Context) ([]byte, error) {
	data, err := c.roundTrip(ctx, http.MethodGet, c.apiPath("export"), nil)
	return data, err
}

// ImportBoard replaces the board from a snapshot document.
func (c *Client) ImportBoard(ctx context.Context, snapshot []byte) error {
	_, err := c.roundTrip(ctx, http.MethodPost, c.apiPath("import"), snapshot)
	return err
}

// Activity returns the newest n journal entries, oldest first.
func (c *Client) Activity(ctx context.Context, n int) ([]ActivityEntry, error) {
	endpoint := c.apiPath("activity")
	if n > 0 {
		endpoint = fmt.Sprintf("%s?n=%d", endpoint, n)
	}
	var resp []ActivityEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Theme returns the persisted UI theme.
func (c *Client) Theme(ctx context.Context) (string, error) {
	var resp struct {
		Theme string `json:"theme"`
	}
	err := c.do(ctx, http.MethodGet, c.apiPath("theme"), nil, &resp)
	return resp.Theme, err
}

// SetTheme persists the UI theme (dark or light).
func (c *Client) SetTheme(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, c.apiPath("theme"), map[string]any{"theme": name}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	data, err := c.roundTrip(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		base = "v1"
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
