package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/cache"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// SQL tool names as the model sees them.
	RunSQLQueryTool   = "run_sql_query"
	ListTablesTool    = "list_tables"
	DescribeTableTool = "describe_table"

	defaultQueryLimit = 10
	maxQueryRows      = 1000

	schemaCacheSize = 128
	schemaCacheTTL  = 5 * time.Minute
	tablesCacheKey  = "\x00tables"
)

// QueryResult is the JSON payload returned by the SQL tools.
type QueryResult struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowsAffected *int64   `json:"rows_affected,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
}

// querier hides the difference between pgxpool and database/sql.
type querier interface {
	query(ctx context.Context, limit int, stmt string, args ...any) (QueryResult, error)
	ping(ctx context.Context) error
	close() error
}

// SQLToolkit exposes a single database to an agent.
type SQLToolkit struct {
	dialect      dsn.Dialect
	q            querier
	defaultLimit int
	// schema caches ListTables and DescribeTable results. Nil disables it.
	schema *cache.LRU[any]
}

// SQLOption customizes a SQLToolkit.
type SQLOption func(*SQLToolkit)

// WithDefaultLimit sets the row limit used when the model does not pass one.
func WithDefaultLimit(n int) SQLOption {
	return func(k *SQLToolkit) {
		if n > 0 {
			k.defaultLimit = n
		}
	}
}

// WithSchemaCache caches table listings and descriptions for ttl. A ttl <= 0
// disables the cache.
func WithSchemaCache(ttl time.Duration) SQLOption {
	return func(k *SQLToolkit) {
		if ttl <= 0 {
			k.schema = nil
			return
		}
		k.schema = cache.New[any](schemaCacheSize, ttl)
	}
}

// NewSQLToolkit prepares a handle for info. Pools connect lazily, so no
// network I/O happens here; use Ping to check reachability.
func NewSQLToolkit(ctx context.Context, info dsn.Info, opts ...SQLOption) (*SQLToolkit, error) {
	k := &SQLToolkit{
		dialect:      info.Dialect,
		defaultLimit: defaultQueryLimit,
		schema:       cache.New[any](schemaCacheSize, schemaCacheTTL),
	}
	for _, opt := range opts {
		opt(k)
	}

	switch info.Dialect {
	case dsn.PostgreSQL:
		cfg, err := pgxpool.ParseConfig(info.Conn)
		if err != nil {
			return nil, fmt.Errorf("parse postgresql connection string: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create postgresql pool: %w", err)
		}
		k.q = &pgxQuerier{pool: pool}
	case dsn.MySQL, dsn.SQLite:
		db, err := openDatabase(info)
		if err != nil {
			return nil, err
		}
		k.q = &sqlQuerier{db: db}
	default:
		return nil, fmt.Errorf("%w: %s", dsn.ErrUnsupportedDialect, info.Dialect)
	}
	return k, nil
}

// openDatabase opens the database/sql handle for a mysql or sqlite
// connection. Like pgxpool it does not connect yet.
func openDatabase(info dsn.Info) (*sql.DB, error) {
	driver, err := dsn.DriverName(info.Dialect)
	if err != nil {
		return nil, err
	}
	var conn string
	if info.Dialect == dsn.MySQL {
		conn, err = dsn.MySQLDSN(info.Conn)
	} else {
		conn, err = dsn.SQLitePath(info.Conn)
	}
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.Dialect, err)
	}
	if info.Dialect == dsn.SQLite && strings.Contains(conn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Dialect reports the database kind this toolkit is bound to.
func (k *SQLToolkit) Dialect() dsn.Dialect { return k.dialect }

// Ping checks that the database is reachable.
func (k *SQLToolkit) Ping(ctx context.Context) error { return k.q.ping(ctx) }

// Close releases the underlying pool.
func (k *SQLToolkit) Close() error { return k.q.close() }

// Query runs stmt, keeping at most limit rows. limit <= 0 means the
// toolkit-wide cap.
func (k *SQLToolkit) Query(ctx context.Context, stmt string, limit int) (QueryResult, error) {
	if strings.TrimSpace(stmt) == "" {
		return QueryResult{}, errors.New("query is empty")
	}
	if limit <= 0 || limit > maxQueryRows {
		limit = maxQueryRows
	}
	res, err := k.q.query(ctx, limit, stmt)
	if !returnsRows(stmt) && k.schema != nil {
		// Statements without rows may have changed the schema.
		k.schema.Purge()
	}
	return res, err
}

// ListTables returns the user tables and views of the database.
func (k *SQLToolkit) ListTables(ctx context.Context) ([]string, error) {
	if names, ok := k.cached(tablesCacheKey).([]string); ok {
		return append([]string(nil), names...), nil
	}

	var stmt string
	switch k.dialect {
	case dsn.PostgreSQL:
		stmt = `SELECT CASE WHEN table_schema = 'public' THEN table_name ELSE table_schema || '.' || table_name END AS name
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name`
	case dsn.MySQL:
		stmt = `SELECT table_name AS name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	default:
		stmt = `SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	res, err := k.q.query(ctx, 0, stmt)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) > 0 {
			names = append(names, fmt.Sprint(row[0]))
		}
	}
	k.store(tablesCacheKey, append([]string(nil), names...))
	return names, nil
}

// DescribeTable returns one row per column of table.
func (k *SQLToolkit) DescribeTable(ctx context.Context, table string) (QueryResult, error) {
	if res, ok := k.cached(table).(QueryResult); ok {
		return res, nil
	}

	var (
		stmt string
		args []any
	)
	switch k.dialect {
	case dsn.PostgreSQL:
		schema, name := "public", table
		if s, n, ok := strings.Cut(table, "."); ok {
			schema, name = s, n
		}
		stmt = `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
		args = []any{schema, name}
	case dsn.MySQL:
		stmt = `SELECT column_name AS column_name, data_type AS data_type, is_nullable AS is_nullable, column_default AS column_default
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`
		args = []any{table}
	default:
		stmt = `SELECT name AS column_name, type AS data_type,
CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END AS is_nullable,
dflt_value AS column_default
FROM pragma_table_info(?)`
		args = []any{table}
	}
	res, err := k.q.query(ctx, 0, stmt, args...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("describe table %s: %w", table, err)
	}
	if len(res.Rows) == 0 {
		return QueryResult{}, fmt.Errorf("table %q not found", table)
	}
	k.store(table, res)
	return res, nil
}

func (k *SQLToolkit) cached(key string) any {
	if k.schema == nil {
		return nil
	}
	v, _ := k.schema.Get(key)
	return v
}

func (k *SQLToolkit) store(key string, v any) {
	if k.schema != nil {
		k.schema.Set(key, v)
	}
}

// Tools returns list_tables, describe_table and run_sql_query.
func (k *SQLToolkit) Tools() []agent.Tool {
	dialect := string(k.dialect)
	return []agent.Tool{
		newTool(agent.ToolSpec{
			Name:        ListTablesTool,
			Description: fmt.Sprintf("List the tables in the connected %s database.", dialect),
			InputSchema: objectSchema(nil, map[string]any{}),
		}, func(ctx context.Context, _ map[string]any) (string, error) {
			names, err := k.ListTables(ctx)
			if err != nil {
				return "", err
			}
			return toJSON(names)
		}),
		newTool(agent.ToolSpec{
			Name:        DescribeTableTool,
			Description: "Describe the columns of a table: name, type, nullability and default.",
			InputSchema: objectSchema([]string{"table_name"}, map[string]any{
				"table_name": prop("string", "Table to describe."),
			}),
		}, func(ctx context.Context, args map[string]any) (string, error) {
			table, err := stringArg(args, "table_name")
			if err != nil {
				return "", err
			}
			res, err := k.DescribeTable(ctx, table)
			if err != nil {
				return "", err
			}
			return toJSON(res)
		}),
		newTool(agent.ToolSpec{
			Name:        RunSQLQueryTool,
			Description: fmt.Sprintf("Run a SQL query against the %s database and return the resulting rows as JSON.", dialect),
			InputSchema: objectSchema([]string{"query"}, map[string]any{
				"query": prop("string", "The SQL statement to run."),
				"limit": prop("integer", fmt.Sprintf("Maximum number of rows to return. Defaults to %d.", k.defaultLimit)),
			}),
			Examples: []map[string]any{
				{"query": "SELECT * FROM users ORDER BY id", "limit": 5},
			},
		}, func(ctx context.Context, args map[string]any) (string, error) {
			stmt, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			limit, err := intArg(args, "limit", k.defaultLimit)
			if err != nil {
				return "", err
			}
			res, err := k.Query(ctx, stmt, limit)
			if err != nil {
				return "", err
			}
			return toJSON(res)
		}),
	}
}

type pgxQuerier struct {
	pool *pgxpool.Pool
}

func (p *pgxQuerier) query(ctx context.Context, limit int, stmt string, args ...any) (QueryResult, error) {
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return QueryResult{}, err
	}
	defer rows.Close()

	res := QueryResult{Columns: []string{}, Rows: [][]any{}}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return QueryResult{}, err
		}
		res.Rows = append(res.Rows, jsonRow(values))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	if tag := rows.CommandTag(); !tag.Select() && len(res.Columns) == 0 {
		n := tag.RowsAffected()
		res.RowsAffected = &n
	}
	return res, nil
}

func (p *pgxQuerier) ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *pgxQuerier) close() error {
	p.pool.Close()
	return nil
}

type sqlQuerier struct {
	db *sql.DB
}

func (s *sqlQuerier) query(ctx context.Context, limit int, stmt string, args ...any) (QueryResult, error) {
	if !returnsRows(stmt) {
		out, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return QueryResult{}, err
		}
		res := QueryResult{Columns: []string{}, Rows: [][]any{}}
		if n, err := out.RowsAffected(); err == nil {
			res.RowsAffected = &n
		}
		return res, nil
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return QueryResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, err
		}
		res.Rows = append(res.Rows, jsonRow(values))
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	return res, nil
}

func (s *sqlQuerier) ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlQuerier) close() error { return s.db.Close() }

var rowKeywords = map[string]bool{
	"select": true, "with": true, "show": true, "pragma": true, "explain": true,
	"describe": true, "desc": true, "values": true, "table": true,
}

// returnsRows guesses whether stmt produces a result set.
func returnsRows(stmt string) bool {
	s := strings.ToLower(stripLeadingComments(stmt))
	if strings.Contains(s, " returning ") {
		return true
	}
	word := s
	if i := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}); i >= 0 {
		word = s[:i]
	}
	return rowKeywords[word]
}

func stripLeadingComments(stmt string) string {
	s := strings.TrimSpace(stmt)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = strings.TrimSpace(s[i+1:])
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = strings.TrimSpace(s[i+2:])
				continue
			}
			return ""
		case strings.HasPrefix(s, "("):
			s = strings.TrimSpace(s[1:])
			continue
		}
		return s
	}
}

func jsonRow(values []any) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = jsonValue(v)
	}
	return row
}

// jsonValue converts driver values into something encoding/json renders
// readably.
func jsonValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return fmt.Sprintf("\\x%x", val)
	case [16]byte:
		return uuid.UUID(val).String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
