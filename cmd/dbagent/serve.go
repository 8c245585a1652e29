package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/Protocol-Lattice/go-dbagent/src/concurrent"
	"github.com/Protocol-Lattice/go-dbagent/src/history"
	"github.com/Protocol-Lattice/go-dbagent/src/server"
	"github.com/Protocol-Lattice/go-dbagent/src/session"
	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger := env.cfg, env.logger

		store, err := history.Open(ctx, cfg.History)
		if err != nil {
			return err
		}

		limiter := concurrent.NewLimiter(cfg.MaxConcurrentQueries)
		opts := []session.Option{
			session.WithLogger(logger),
			session.WithLimiter(limiter),
		}
		if store != nil {
			opts = append(opts, session.WithHistory(store))
		}
		reg := session.NewRegistry(sqlSessionFactory(factoryConfig{
			newModel: providerModel(cfg.Provider, cfg.Model),
			logger:   logger,
			sqlOpts:  sqlOptions(cfg),
		}), opts...)

		logger.Info().
			Str("provider", cfg.Provider).
			Str("model", cfg.Model).
			Str("history", cfg.History.Backend).
			Int("max_concurrent_queries", limiter.Max()).
			Msg("starting server")

		runErr := server.New(reg, logger).Run(ctx, cfg.Addr, cfg.ShutdownTimeout)

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(runErr, reg.Close(closeCtx))
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default :8000 or ADDR/PORT)")
}
