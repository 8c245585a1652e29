package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS query_history (
	id UUID PRIMARY KEY,
	session_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	sql_query TEXT,
	tool_calls JSONB NOT NULL DEFAULT '[]'::jsonb,
	execution_time_ms DOUBLE PRECISION NOT NULL,
	database_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS query_history_session_created_idx ON query_history (session_id, created_at);
`

// PostgresStore writes entries to the query_history table.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to connStr and creates the schema if needed.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, errors.New("postgres history url is required")
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	tools, err := json.Marshal(e.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO query_history (id, session_id, prompt, response, sql_query, tool_calls, execution_time_ms, database_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)`,
		e.ID, e.SessionID, e.Prompt, e.Response, e.SQL, string(tools), e.ExecutionTimeMS, e.DatabaseType, e.CreatedAt)
	return err
}

func (s *PostgresStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.DB.Query(ctx, `
SELECT id::text, session_id, prompt, response, sql_query, tool_calls::text, execution_time_ms, database_type, created_at
FROM (
	SELECT * FROM query_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
) recent
ORDER BY created_at ASC`, sessionID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e     Entry
			tools string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Prompt, &e.Response, &e.SQL, &tools, &e.ExecutionTimeMS, &e.DatabaseType, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tools), &e.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close(context.Context) error {
	s.DB.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
