package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"taskboard/internal/app"
	"taskboard/internal/server"
)

func main() {
	workspace := filepath.Join(os.TempDir(), "taskboard-check5")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		panic(err)
	}
	a, err := app.Open(context.Background(), workspace)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	secret := "test-secret"
	h, err := server.New(server.Config{App: a, BasePath: "/v1", Auth: server.AuthConfig{Secret: secret}})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()
	token, err := server.MintToken(secret, "tester", time.Hour)
	if err != nil {
		panic(err)
	}

	body, _ := json.Marshal(map[string]any{"text": "smoke card"})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/cards", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}
