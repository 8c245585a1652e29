package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/result"
)

func sampleEntry(session string, i int) Entry {
	sql := fmt.Sprintf("SELECT %d", i)
	return Entry{
		ID:              fmt.Sprintf("id-%d", i),
		SessionID:       session,
		Prompt:          fmt.Sprintf("prompt %d", i),
		Response:        fmt.Sprintf("response %d", i),
		SQL:             &sql,
		ToolCalls:       []result.ToolInvocation{{Name: "run_sql_query", Arguments: map[string]any{"query": sql}, SQL: sql}},
		ExecutionTimeMS: float64(i),
		DatabaseType:    "sqlite",
		CreatedAt:       time.Unix(int64(i), 0).UTC(),
	}
}

func TestMemoryStoreOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	for i := 1; i <= 5; i++ {
		if err := store.Append(ctx, sampleEntry("a", i)); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}
	_ = store.Append(ctx, sampleEntry("b", 9))

	all, err := store.List(ctx, "a", 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "id-3" || all[2].ID != "id-5" {
		t.Fatalf("expected the newest three in order, got %+v", ids(all))
	}

	last, _ := store.List(ctx, "a", 2)
	if len(last) != 2 || last[0].ID != "id-4" || last[1].ID != "id-5" {
		t.Fatalf("unexpected limited list %v", ids(last))
	}

	none, _ := store.List(ctx, "missing", 10)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}

	// mutating the returned slice must not affect the store
	all[0].Prompt = "changed"
	again, _ := store.List(ctx, "a", 0)
	if again[0].Prompt == "changed" {
		t.Fatalf("List must return a copy")
	}
}

func TestMemoryStoreForget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	_ = store.Append(ctx, sampleEntry("a", 1))
	_ = store.Append(ctx, sampleEntry("a", 2))
	_ = store.Append(ctx, sampleEntry("b", 3))

	if err := store.Forget(ctx, "a"); err != nil {
		t.Fatalf("Forget returned error: %v", err)
	}
	if got, _ := store.List(ctx, "a", 0); len(got) != 0 {
		t.Fatalf("expected a forgotten session to list nothing, got %v", ids(got))
	}
	if got, _ := store.List(ctx, "b", 0); len(got) != 1 {
		t.Fatalf("other sessions must be kept, got %v", ids(got))
	}
	if err := store.Forget(ctx, "missing"); err != nil {
		t.Fatalf("Forget of an unknown session should be a no-op, got %v", err)
	}
}

func TestNewEntryCopiesResult(t *testing.T) {
	sql := "SELECT 1"
	e := NewEntry("s1", result.Result{
		Prompt:        "p",
		Response:      "r",
		SQL:           &sql,
		ExecutionTime: 12.5,
		DatabaseType:  "postgresql",
	})
	if e.ID == "" || e.SessionID != "s1" || e.Prompt != "p" || *e.SQL != "SELECT 1" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ToolCalls == nil || e.ExecutionTimeMS != 12.5 || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected memory store by default, got %T", s)
	}
	s, err = Open(ctx, Config{Backend: "none"})
	if err != nil || s != nil {
		t.Fatalf("expected nil store for none, got %v %v", s, err)
	}
	if _, err := Open(ctx, Config{Backend: "redis"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := Open(ctx, Config{Backend: "postgres"}); err == nil {
		t.Fatalf("expected error without url")
	}
	if _, err := Open(ctx, Config{Backend: "mongo"}); err == nil {
		t.Fatalf("expected error without url")
	}
	if _, err := Open(ctx, Config{Backend: "neo4j"}); err == nil {
		t.Fatalf("expected error without url")
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

type fakeNeo4jDriver struct {
	sessions []*fakeNeo4jSession
	records  []map[string]any
	runErr   error
	closed   bool
}

func (d *fakeNeo4jDriver) NewSession(_ context.Context, cfg Neo4jSessionConfig) (neo4jSession, error) {
	s := &fakeNeo4jSession{driver: d, cfg: cfg}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeNeo4jDriver) Close(context.Context) error {
	d.closed = true
	return nil
}

type fakeNeo4jSession struct {
	driver *fakeNeo4jDriver
	cfg    Neo4jSessionConfig
	query  string
	params map[string]any
	closed bool
}

func (s *fakeNeo4jSession) Run(_ context.Context, query string, params map[string]any) (neo4jResult, error) {
	s.query = query
	s.params = params
	if s.driver.runErr != nil {
		return nil, s.driver.runErr
	}
	return &fakeNeo4jResult{records: s.driver.records, idx: -1}, nil
}

func (s *fakeNeo4jSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeNeo4jResult struct {
	records []map[string]any
	idx     int
}

func (r *fakeNeo4jResult) Next(context.Context) bool {
	r.idx++
	return r.idx < len(r.records)
}

func (r *fakeNeo4jResult) Record() neo4jRecord { return fakeNeo4jRecord(r.records[r.idx]) }

func (r *fakeNeo4jResult) Err() error { return nil }

type fakeNeo4jRecord map[string]any

func (r fakeNeo4jRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func TestNeo4jStoreAppend(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	store, err := NewNeo4jStore(driver, "history")
	if err != nil {
		t.Fatalf("NewNeo4jStore returned error: %v", err)
	}
	e := sampleEntry("s1", 7)
	if err := store.Append(context.Background(), e); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if len(driver.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(driver.sessions))
	}
	sess := driver.sessions[0]
	if sess.cfg.AccessMode != AccessModeWrite || sess.cfg.DatabaseName != "history" || !sess.closed {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !strings.Contains(sess.query, "[:ASKED]") {
		t.Fatalf("unexpected query %s", sess.query)
	}
	if sess.params["session_id"] != "s1" || sess.params["sql"] != "SELECT 7" || sess.params["created_at"] != int64(7_000_000_000) {
		t.Fatalf("unexpected params %v", sess.params)
	}
	if !strings.Contains(sess.params["tool_calls"].(string), `"run_sql_query"`) {
		t.Fatalf("tool calls not encoded: %v", sess.params["tool_calls"])
	}
}

func TestNeo4jStoreList(t *testing.T) {
	driver := &fakeNeo4jDriver{records: []map[string]any{
		{"id": "q2", "prompt": "second", "response": "r2", "sql": nil, "tool_calls": "[]", "execution_time_ms": 2.5, "database_type": "mysql", "created_at": int64(2_000_000_000)},
		{"id": "q1", "prompt": "first", "response": "r1", "sql": "SELECT 1", "tool_calls": `[{"name":"run_sql_query","arguments":{"query":"SELECT 1"},"sql":"SELECT 1"}]`, "execution_time_ms": int64(1), "database_type": "mysql", "created_at": int64(1_000_000_000)},
	}}
	store, _ := NewNeo4jStore(driver, "")

	entries, err := store.List(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "q1" || entries[1].ID != "q2" {
		t.Fatalf("expected chronological order, got %v", ids(entries))
	}
	if entries[0].SQL == nil || *entries[0].SQL != "SELECT 1" || entries[1].SQL != nil {
		t.Fatalf("unexpected sql mapping")
	}
	if len(entries[0].ToolCalls) != 1 || entries[0].ToolCalls[0].SQL != "SELECT 1" {
		t.Fatalf("unexpected tool calls %+v", entries[0].ToolCalls)
	}
	if entries[0].ExecutionTimeMS != 1 || entries[1].CreatedAt.Unix() != 2 {
		t.Fatalf("unexpected numeric mapping %+v", entries)
	}
	sess := driver.sessions[0]
	if sess.cfg.AccessMode != AccessModeRead || sess.params["limit"] != int64(2) || !strings.Contains(sess.query, "LIMIT $limit") {
		t.Fatalf("unexpected list call %+v", sess)
	}
}

func TestNeo4jStorePropagatesErrors(t *testing.T) {
	driver := &fakeNeo4jDriver{runErr: errors.New("unavailable")}
	store, _ := NewNeo4jStore(driver, "")
	if err := store.Append(context.Background(), sampleEntry("s", 1)); err == nil {
		t.Fatalf("expected run error")
	}
	if _, err := NewNeo4jStore(nil, ""); err == nil {
		t.Fatalf("expected nil driver error")
	}
	if err := store.Close(context.Background()); err != nil || !driver.closed {
		t.Fatalf("expected driver to be closed")
	}
}
