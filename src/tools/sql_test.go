package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
)

func newSQLiteToolkit(t *testing.T, opts ...SQLOption) *SQLToolkit {
	t.Helper()
	info, err := dsn.Parse("sqlite:///:memory:")
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	kit, err := NewSQLToolkit(context.Background(), info, opts...)
	if err != nil {
		t.Fatalf("NewSQLToolkit returned error: %v", err)
	}
	t.Cleanup(func() { _ = kit.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)`,
		`INSERT INTO users (name, age) VALUES ('ada', 36), ('grace', 45), ('linus', 28)`,
	} {
		if _, err := kit.Query(ctx, stmt, 0); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	return kit
}

func invoke(t *testing.T, tool agent.Tool, args map[string]any) string {
	t.Helper()
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{SessionID: "test", Arguments: args})
	if err != nil {
		t.Fatalf("%s returned error: %v", tool.Spec().Name, err)
	}
	return resp.Content
}

func findTool(t *testing.T, tools []agent.Tool, name string) agent.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Spec().Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestSQLToolkitExposesThreeTools(t *testing.T) {
	kit := newSQLiteToolkit(t)
	tools := kit.Tools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	for _, name := range []string{ListTablesTool, DescribeTableTool, RunSQLQueryTool} {
		findTool(t, tools, name)
	}
	if kit.Dialect() != dsn.SQLite {
		t.Fatalf("unexpected dialect %s", kit.Dialect())
	}
}

func TestSQLToolkitListAndDescribe(t *testing.T) {
	kit := newSQLiteToolkit(t)
	tools := kit.Tools()

	var tables []string
	if err := json.Unmarshal([]byte(invoke(t, findTool(t, tools, ListTablesTool), nil)), &tables); err != nil {
		t.Fatalf("decode tables: %v", err)
	}
	if len(tables) != 1 || tables[0] != "users" {
		t.Fatalf("unexpected tables %v", tables)
	}

	var desc QueryResult
	out := invoke(t, findTool(t, tools, DescribeTableTool), map[string]any{"table_name": "users"})
	if err := json.Unmarshal([]byte(out), &desc); err != nil {
		t.Fatalf("decode describe: %v", err)
	}
	if len(desc.Rows) != 3 {
		t.Fatalf("expected 3 columns, got %d: %s", len(desc.Rows), out)
	}
	if desc.Columns[0] != "column_name" || desc.Rows[1][0] != "name" || desc.Rows[1][2] != "NO" {
		t.Fatalf("unexpected describe output %s", out)
	}

	if _, err := kit.DescribeTable(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}

func TestRunSQLQueryAppliesLimit(t *testing.T) {
	kit := newSQLiteToolkit(t)
	tool := findTool(t, kit.Tools(), RunSQLQueryTool)

	var res QueryResult
	out := invoke(t, tool, map[string]any{"query": "SELECT name, age FROM users ORDER BY age", "limit": float64(2)})
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Rows) != 2 || !res.Truncated {
		t.Fatalf("expected 2 truncated rows, got %s", out)
	}
	if res.Columns[0] != "name" || res.Rows[0][0] != "linus" || res.Rows[0][1] != float64(28) {
		t.Fatalf("unexpected rows %s", out)
	}

	res = QueryResult{}
	out = invoke(t, tool, map[string]any{"query": "SELECT count(*) AS n FROM users"})
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Truncated || res.Rows[0][0] != float64(3) {
		t.Fatalf("unexpected count result %s", out)
	}
}

func TestRunSQLQueryReportsRowsAffected(t *testing.T) {
	kit := newSQLiteToolkit(t)
	res, err := kit.Query(context.Background(), "-- bump ages\nUPDATE users SET age = age + 1 WHERE age > 30", 10)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.RowsAffected == nil || *res.RowsAffected != 2 {
		t.Fatalf("expected 2 rows affected, got %v", res.RowsAffected)
	}
}

func TestRunSQLQueryErrors(t *testing.T) {
	kit := newSQLiteToolkit(t)
	tool := findTool(t, kit.Tools(), RunSQLQueryTool)
	ctx := context.Background()
	if _, err := tool.Invoke(ctx, agent.ToolRequest{Arguments: map[string]any{}}); err == nil {
		t.Fatalf("expected missing query error")
	}
	if _, err := tool.Invoke(ctx, agent.ToolRequest{Arguments: map[string]any{"query": "SELECT * FROM nope"}}); err == nil {
		t.Fatalf("expected SQL error")
	}
	if _, err := tool.Invoke(ctx, agent.ToolRequest{Arguments: map[string]any{"query": "SELECT 1", "limit": "many"}}); err == nil {
		t.Fatalf("expected limit error")
	}
}

func TestNewSQLToolkitIsLazy(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{
		"postgresql://u:p@127.0.0.1:1/db",
		"mysql://u:p@127.0.0.1:1/db",
	} {
		info, err := dsn.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		kit, err := NewSQLToolkit(ctx, info)
		if err != nil {
			t.Fatalf("NewSQLToolkit(%s) should not dial: %v", raw, err)
		}
		_ = kit.Close()
	}

	if _, err := NewSQLToolkit(ctx, dsn.Info{Dialect: dsn.Unknown, Conn: "ftp://x"}); !errors.Is(err, dsn.ErrUnsupportedDialect) {
		t.Fatalf("expected unsupported dialect error, got %v", err)
	}
}

func TestReturnsRows(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                               true,
		"  with x as (select 1) select * from x": true,
		"/* c */ select 1":                       true,
		"(SELECT 1) UNION (SELECT 2)":            true,
		"PRAGMA table_info(users)":               true,
		"INSERT INTO t VALUES (1) RETURNING id":  true,
		"insert into t values (1)":               false,
		"UPDATE t SET a = 1":                     false,
		"CREATE TABLE selected (id int)":         false,
		"-- only a comment":                      false,
	}
	for stmt, want := range cases {
		if got := returnsRows(stmt); got != want {
			t.Fatalf("returnsRows(%q) = %v, want %v", stmt, got, want)
		}
	}
}

func TestJSONValue(t *testing.T) {
	if got := jsonValue([]byte("hi")); got != "hi" {
		t.Fatalf("unexpected %v", got)
	}
	if got := jsonValue([]byte{0xff, 0x00}); got != `\xff00` {
		t.Fatalf("unexpected %v", got)
	}
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	if got := jsonValue(id); got != "12345678-9abc-def0-1234-56789abcdef0" {
		t.Fatalf("unexpected uuid %v", got)
	}
}

func TestSchemaCacheInvalidatedBySchemaChanges(t *testing.T) {
	kit := newSQLiteToolkit(t)
	ctx := context.Background()

	tables, err := kit.ListTables(ctx)
	if err != nil || len(tables) != 1 {
		t.Fatalf("unexpected tables %v (%v)", tables, err)
	}
	if _, err := kit.Query(ctx, "CREATE TABLE orders (id INTEGER PRIMARY KEY)", 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	tables, err = kit.ListTables(ctx)
	if err != nil || len(tables) != 2 {
		t.Fatalf("cache should be dropped after DDL, got %v (%v)", tables, err)
	}

	if _, err := kit.DescribeTable(ctx, "orders"); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if _, err := kit.Query(ctx, "ALTER TABLE orders ADD COLUMN total REAL", 0); err != nil {
		t.Fatalf("alter table: %v", err)
	}
	res, err := kit.DescribeTable(ctx, "orders")
	if err != nil || len(res.Rows) != 2 {
		t.Fatalf("expected fresh description with two columns, got %+v (%v)", res, err)
	}
}

func TestWithDefaultLimit(t *testing.T) {
	kit := newSQLiteToolkit(t, WithDefaultLimit(1))
	var res QueryResult
	out := invoke(t, findTool(t, kit.Tools(), RunSQLQueryTool), map[string]any{"query": "SELECT name FROM users"})
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Rows) != 1 || !res.Truncated {
		t.Fatalf("expected the configured default of one row, got %s", out)
	}
}

func TestWithSchemaCacheDisabled(t *testing.T) {
	kit := newSQLiteToolkit(t, WithSchemaCache(0))
	if kit.schema != nil {
		t.Fatalf("a zero ttl should disable the schema cache")
	}
	if _, err := kit.ListTables(context.Background()); err != nil {
		t.Fatalf("ListTables without cache: %v", err)
	}
}

func TestPing(t *testing.T) {
	kit := newSQLiteToolkit(t)
	if err := kit.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
}
