package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/config"
	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
	"github.com/Protocol-Lattice/go-dbagent/src/models"
	"github.com/Protocol-Lattice/go-dbagent/src/session"
	"github.com/Protocol-Lattice/go-dbagent/src/tools"
	"github.com/rs/zerolog"
)

var sqlInstructions = []string{
	"List the tables and describe the relevant ones before writing a query",
	"Use only tables and columns that exist",
	"Prefer a single read-only query that answers the question",
	"Include the SQL you ran in your answer",
}

func sqlSystemPrompt(d dsn.Dialect) string {
	return fmt.Sprintf("You are a data analyst with access to a %s database. Answer questions by querying it with the available tools and explain the results in plain language.", d)
}

// newModelFunc builds one model per session; tests swap it for a scripted one.
type newModelFunc func(ctx context.Context) (models.Agent, error)

func providerModel(provider, model string) newModelFunc {
	return func(ctx context.Context) (models.Agent, error) {
		return models.NewLLMProvider(ctx, provider, model, "")
	}
}

type factoryConfig struct {
	newModel newModelFunc
	logger   zerolog.Logger
	sqlOpts  []tools.SQLOption
	// ping makes connect fail fast on an unreachable database.
	ping bool
}

func sqlOptions(cfg config.Config) []tools.SQLOption {
	return []tools.SQLOption{
		tools.WithDefaultLimit(cfg.SQLRowLimit),
		tools.WithSchemaCache(cfg.SchemaCacheTTL),
	}
}

// sqlSessionFactory binds each connection to a SQL toolkit, an executing
// agent and a plan-only agent sharing the same model.
func sqlSessionFactory(fc factoryConfig) session.Factory {
	logger := fc.logger
	return func(ctx context.Context, info dsn.Info) (session.Binding, error) {
		toolkit, err := tools.NewSQLToolkit(ctx, info, fc.sqlOpts...)
		if err != nil {
			return session.Binding{}, err
		}
		if fc.ping {
			if err := toolkit.Ping(ctx); err != nil {
				_ = toolkit.Close()
				return session.Binding{}, fmt.Errorf("ping %s database: %w", info.Dialect, err)
			}
		}
		model, err := fc.newModel(ctx)
		if err != nil {
			_ = toolkit.Close()
			return session.Binding{}, err
		}
		closer := multiCloser{toolkit}
		if c, ok := model.(io.Closer); ok {
			closer = append(closer, c)
		}

		opts := agent.Options{
			Model:        model,
			SystemPrompt: sqlSystemPrompt(info.Dialect),
			Instructions: sqlInstructions,
			Tools:        toolkit.Tools(),
			Logger:       &logger,
		}
		runner, err := agent.New(opts)
		if err != nil {
			_ = closer.Close()
			return session.Binding{}, err
		}
		opts.PlanOnly = true
		planner, err := agent.New(opts)
		if err != nil {
			_ = closer.Close()
			return session.Binding{}, err
		}
		return session.Binding{Agent: runner, Planner: planner, Closer: closer}, nil
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
