package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/concurrent"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
	"github.com/Protocol-Lattice/go-dbagent/src/history"
	"github.com/Protocol-Lattice/go-dbagent/src/result"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry is the single source of truth for connected sessions. The lock
// only guards the map; agents always run outside it.
type Registry struct {
	factory Factory
	limiter *concurrent.Limiter
	history history.Store
	logger  zerolog.Logger
	newID   func() string
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLimiter bounds concurrent agent delegations.
func WithLimiter(l *concurrent.Limiter) Option {
	return func(r *Registry) { r.limiter = l }
}

// WithHistory records every answered query in store.
func WithHistory(store history.Store) Option {
	return func(r *Registry) { r.history = store }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithIDGenerator replaces the random session id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty registry using factory to build sessions.
func NewRegistry(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:  factory,
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect validates raw, builds a binding for it and registers a new
// session. Nothing is registered when any step fails.
func (r *Registry) Connect(ctx context.Context, raw string) (Session, error) {
	info, err := dsn.Parse(raw)
	if err != nil {
		return Session{}, err
	}
	if r.factory == nil {
		return Session{}, errors.New("no session factory configured")
	}

	b, err := r.factory(ctx, info)
	if err != nil {
		return Session{}, err
	}
	if b.Agent == nil {
		if b.Closer != nil {
			_ = b.Closer.Close()
		}
		return Session{}, errors.New("session factory returned no agent")
	}

	s := &Session{
		ID:         r.newID(),
		Dialect:    info.Dialect,
		ConnString: info.Conn,
		CreatedAt:  r.now().UTC(),
		agent:      b.Agent,
		planner:    b.Planner,
		closer:     b.Closer,
	}

	r.mu.Lock()
	if _, taken := r.sessions[s.ID]; taken {
		r.mu.Unlock()
		if b.Closer != nil {
			_ = b.Closer.Close()
		}
		return Session{}, fmt.Errorf("session id %s already in use", s.ID)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info().
		Str("session_id", s.ID).
		Str("database_type", string(s.Dialect)).
		Str("conn", dsn.Mask(s.ConnString)).
		Msg("session connected")
	return *s, nil
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id string) (Session, bool) {
	s, ok := r.get(id)
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// get matches id exactly; only strings returned by Connect resolve.
func (r *Registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns all sessions, oldest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Query delegates prompt to the session's agent and normalizes its answer.
func (r *Registry) Query(ctx context.Context, id, prompt string) (result.Result, error) {
	s, ok := r.get(id)
	if !ok {
		return result.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return r.delegate(ctx, s, s.agent, prompt)
}

// Plan is Query for a dry run: the planner proposes tool calls without
// executing them.
func (r *Registry) Plan(ctx context.Context, id, prompt string) (result.Result, error) {
	s, ok := r.get(id)
	if !ok {
		return result.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.planner == nil {
		return result.Result{}, &QueryError{SessionID: s.ID, Err: ErrPlanningUnsupported}
	}
	return r.delegate(ctx, s, s.planner, prompt)
}

func (r *Registry) delegate(ctx context.Context, s *Session, runner Runner, prompt string) (result.Result, error) {
	var (
		resp    agent.Response
		elapsed time.Duration
	)
	err := r.limiter.Do(ctx, func() error {
		start := time.Now()
		var runErr error
		resp, runErr = safeRun(ctx, runner, s.ID, prompt)
		elapsed = time.Since(start)
		return runErr
	})
	if err != nil {
		r.logger.Error().Err(err).Str("session_id", s.ID).Msg("query failed")
		return result.Result{}, &QueryError{SessionID: s.ID, Err: err}
	}

	res := result.Build(prompt, resp, elapsed, string(s.Dialect))
	r.logger.Info().
		Str("session_id", s.ID).
		Int("tool_calls", len(res.Tools)).
		Float64("execution_time_ms", res.ExecutionTime).
		Msg("query answered")
	r.record(ctx, s.ID, res)
	return res, nil
}

// safeRun converts a panicking agent into an error.
func safeRun(ctx context.Context, runner Runner, id, prompt string) (resp agent.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = fmt.Errorf("agent panicked: %v", p)
		}
	}()
	return runner.Run(ctx, id, prompt)
}

func (r *Registry) record(ctx context.Context, id string, res result.Result) {
	if r.history == nil {
		return
	}
	if err := r.history.Append(context.WithoutCancel(ctx), history.NewEntry(id, res)); err != nil {
		r.logger.Warn().Err(err).Str("session_id", id).Msg("history append failed")
	}
}

// History returns the recorded queries of a live session.
func (r *Registry) History(ctx context.Context, id string, limit int) ([]history.Entry, error) {
	s, ok := r.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if r.history == nil {
		return []history.Entry{}, nil
	}
	entries, err := r.history.List(ctx, s.ID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// Disconnect removes a session and releases its database handle.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	r.logger.Info().Str("session_id", id).Msg("session disconnected")
	err := closeSession(s)
	if f, ok := r.history.(history.Forgetter); ok {
		if ferr := f.Forget(ctx, id); ferr != nil {
			err = errors.Join(err, fmt.Errorf("forget history: %w", ferr))
		}
	}
	return err
}

// Close disconnects every session and closes the history store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	err := concurrent.ParallelForEach(ctx, all, func(_ context.Context, s *Session) error {
		return closeSession(s)
	}, 8)
	if r.history != nil {
		err = errors.Join(err, r.history.Close(ctx))
	}
	return err
}

func closeSession(s *Session) error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", s.ID, err)
	}
	return nil
}
