// Package history keeps an append-only log of answered queries per session.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/result"
	"github.com/google/uuid"
)

// Entry is one answered query.
type Entry struct {
	ID              string                  `json:"id" bson:"_id"`
	SessionID       string                  `json:"session_id" bson:"session_id"`
	Prompt          string                  `json:"prompt" bson:"prompt"`
	Response        string                  `json:"response" bson:"response"`
	SQL             *string                 `json:"sql" bson:"sql,omitempty"`
	ToolCalls       []result.ToolInvocation `json:"tool_calls" bson:"tool_calls"`
	ExecutionTimeMS float64                 `json:"execution_time_ms" bson:"execution_time_ms"`
	DatabaseType    string                  `json:"database_type" bson:"database_type"`
	CreatedAt       time.Time               `json:"created_at" bson:"created_at"`
}

// NewEntry records res as answered for sessionID now.
func NewEntry(sessionID string, res result.Result) Entry {
	tools := res.Tools
	if tools == nil {
		tools = []result.ToolInvocation{}
	}
	return Entry{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Prompt:          res.Prompt,
		Response:        res.Response,
		SQL:             res.SQL,
		ToolCalls:       tools,
		ExecutionTimeMS: res.ExecutionTime,
		DatabaseType:    res.DatabaseType,
		CreatedAt:       time.Now().UTC(),
	}
}

// Store persists entries. List returns the newest limit entries of a
// session in chronological order; limit <= 0 returns all of them.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Close(ctx context.Context) error
}

// Forgetter is implemented by stores whose entries live only as long as
// their session. Persistent backends keep entries as an audit log.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendNeo4j    = "neo4j"
	BackendNone     = "none"
)

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("unknown history backend")

// Config selects and configures a backend.
type Config struct {
	Backend string
	// URL is the connection string of the postgres, mongo or neo4j server.
	URL string
	// Database names the mongo or neo4j database.
	Database string
	Username string
	Password string
	// PerSession bounds the memory backend. Defaults to 100.
	PerSession int
}

// Open builds the Store described by cfg. The "none" backend returns a nil
// Store and nil error.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(cfg.PerSession), nil
	case BackendNone:
		return nil, nil
	case BackendPostgres, "postgresql":
		return NewPostgresStore(ctx, cfg.URL)
	case BackendMongo, "mongodb":
		return NewMongoStore(ctx, cfg.URL, cfg.Database)
	case BackendNeo4j:
		return OpenNeo4jStore(ctx, cfg.URL, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

func tail(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
