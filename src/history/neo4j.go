package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/result"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig is the subset of driver session options the store uses.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// The interfaces below cover exactly the driver surface the store needs so
// tests can substitute fakes.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

const neo4jAppend = `
MERGE (s:Session {id: $session_id})
ON CREATE SET s.database_type = $database_type, s.created_at = $created_at
CREATE (s)-[:ASKED]->(:Query {
	id: $id,
	prompt: $prompt,
	response: $response,
	sql: $sql,
	tool_calls: $tool_calls,
	execution_time_ms: $execution_time_ms,
	database_type: $database_type,
	created_at: $created_at
})`

const neo4jList = `
MATCH (:Session {id: $session_id})-[:ASKED]->(q:Query)
RETURN q.id AS id, q.prompt AS prompt, q.response AS response, q.sql AS sql,
       q.tool_calls AS tool_calls, q.execution_time_ms AS execution_time_ms,
       q.database_type AS database_type, q.created_at AS created_at
ORDER BY q.created_at DESC`

// Neo4jStore records each query as a (:Session)-[:ASKED]->(:Query) edge.
type Neo4jStore struct {
	driver   neo4jDriver
	database string
}

// NewNeo4jStore wraps an already configured driver.
func NewNeo4jStore(driver neo4jDriver, database string) (*Neo4jStore, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

func (s *Neo4jStore) Append(ctx context.Context, e Entry) error {
	tools, err := json.Marshal(e.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	var sql any
	if e.SQL != nil {
		sql = *e.SQL
	}
	params := map[string]any{
		"id":                e.ID,
		"session_id":        e.SessionID,
		"prompt":            e.Prompt,
		"response":          e.Response,
		"sql":               sql,
		"tool_calls":        string(tools),
		"execution_time_ms": e.ExecutionTimeMS,
		"database_type":     e.DatabaseType,
		"created_at":        e.CreatedAt.UnixNano(),
	}
	return s.run(ctx, AccessModeWrite, neo4jAppend, params, nil)
}

func (s *Neo4jStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	query := neo4jList
	params := map[string]any{"session_id": sessionID}
	if limit > 0 {
		query += "\nLIMIT $limit"
		params["limit"] = int64(limit)
	}

	var newestFirst []Entry
	err := s.run(ctx, AccessModeRead, query, params, func(rec neo4jRecord) error {
		e, err := mapNeo4jRecord(sessionID, rec)
		if err != nil {
			return err
		}
		newestFirst = append(newestFirst, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) run(ctx context.Context, mode Neo4jAccessMode, query string, params map[string]any, each func(neo4jRecord) error) error {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: mode, DatabaseName: s.database})
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	for res.Next(ctx) {
		if each == nil {
			continue
		}
		if rec := res.Record(); rec != nil {
			if err := each(rec); err != nil {
				return err
			}
		}
	}
	return res.Err()
}

func mapNeo4jRecord(sessionID string, rec neo4jRecord) (Entry, error) {
	get := func(key string) any {
		v, _ := rec.Get(key)
		return v
	}
	e := Entry{
		ID:              toString(get("id")),
		SessionID:       sessionID,
		Prompt:          toString(get("prompt")),
		Response:        toString(get("response")),
		ExecutionTimeMS: toFloat64(get("execution_time_ms")),
		DatabaseType:    toString(get("database_type")),
		CreatedAt:       time.Unix(0, toInt64(get("created_at"))).UTC(),
		ToolCalls:       []result.ToolInvocation{},
	}
	if v := get("sql"); v != nil {
		sql := toString(v)
		e.SQL = &sql
	}
	if raw := toString(get("tool_calls")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.ToolCalls); err != nil {
			return Entry{}, fmt.Errorf("decode tool calls of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	default:
		return 0
	}
}

var _ Store = (*Neo4jStore)(nil)
