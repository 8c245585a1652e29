// Package session binds connected databases to agents under opaque ids.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
)

// ErrSessionNotFound is returned for ids no successful Connect produced.
var ErrSessionNotFound = errors.New("session not found")

// ErrPlanningUnsupported is returned by Plan when the session has no planner.
var ErrPlanningUnsupported = errors.New("dry run is not supported by this session")

// QueryError wraps a failure raised while the agent handled a prompt.
// Its message is the underlying failure's message.
type QueryError struct {
	SessionID string
	Err       error
}

func (e *QueryError) Error() string { return e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// Runner answers prompts. *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, sessionID, prompt string) (agent.Response, error)
}

// Binding is what a Factory builds for a connection string.
type Binding struct {
	Agent Runner
	// Planner, when set, answers dry-run queries without executing tools.
	Planner Runner
	// Closer releases the database handle when the session ends.
	Closer io.Closer
}

// Factory builds the tool adapter and agent for a validated connection.
type Factory func(ctx context.Context, info dsn.Info) (Binding, error)

// Session is a connected agent/database pair.
type Session struct {
	ID         string
	Dialect    dsn.Dialect
	ConnString string
	CreatedAt  time.Time

	agent   Runner
	planner Runner
	closer  io.Closer
}
