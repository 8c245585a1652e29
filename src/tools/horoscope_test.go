package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

func TestHoroscopeToolRequestShape(t *testing.T) {
	var gotKey, gotSign, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotSign = r.URL.Query().Get("zodiac")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"date":"2024-01-01","zodiac":"aries","horoscope":"Bold moves pay off."}`))
	}))
	defer srv.Close()

	tool := NewHoroscopeTool("secret")
	tool.BaseURL = srv.URL + "/v1/horoscope"
	tool.Client = srv.Client()

	if !tool.Spec().StopAfterCall {
		t.Fatalf("horoscope output should end the run")
	}

	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"sign": "Aries"}})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if resp.Content != "Bold moves pay off." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if gotKey != "secret" || gotSign != "aries" || gotPath != "/v1/horoscope" {
		t.Fatalf("unexpected request key=%q sign=%q path=%q", gotKey, gotSign, gotPath)
	}
}

func TestHoroscopeToolErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tool := &HoroscopeTool{BaseURL: srv.URL, APIKey: "bad", Client: srv.Client()}
	if _, err := tool.Fetch(context.Background(), "leo"); err == nil {
		t.Fatalf("expected error for 401")
	}
	if _, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{}}); err == nil {
		t.Fatalf("expected missing sign error")
	}
}

func TestHoroscopeToolFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text reading\n"))
	}))
	defer srv.Close()

	tool := &HoroscopeTool{BaseURL: srv.URL, Client: srv.Client()}
	got, err := tool.Fetch(context.Background(), "virgo")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got != "plain text reading" {
		t.Fatalf("unexpected body %q", got)
	}
}
