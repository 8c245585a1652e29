package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/Protocol-Lattice/go-dbagent/src/session"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	flagDB     string
	flagDryRun bool
	flagJSON   bool
)

var askCmd = &cobra.Command{
	Use:   "ask --db <conn> <question>",
	Short: "Ask one question about a database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger := env.cfg, env.logger

		reg := session.NewRegistry(sqlSessionFactory(factoryConfig{
			newModel: providerModel(cfg.Provider, cfg.Model),
			logger:   logger,
			sqlOpts:  sqlOptions(cfg),
			ping:     true,
		}), session.WithLogger(logger))
		defer reg.Close(context.WithoutCancel(ctx))

		sess, err := reg.Connect(ctx, flagDB)
		if err != nil {
			return err
		}

		prompt := strings.Join(args, " ")
		run := reg.Query
		if flagDryRun {
			run = reg.Plan
		}
		res, err := run(ctx, sess.ID, prompt)
		if err != nil {
			return err
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		pterm.Println(res.Response)
		if res.SQL != nil {
			pterm.Println()
			pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("SQL: ") + *res.SQL)
		}
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("%s · %.2f ms · %d tool calls", res.DatabaseType, res.ExecutionTime, len(res.Tools)))
		return nil
	},
}

func init() {
	f := askCmd.Flags()
	f.StringVar(&flagDB, "db", "", "Database connection string (postgresql://, mysql:// or sqlite://)")
	f.BoolVar(&flagDryRun, "dry-run", false, "Show the planned tool calls without running them")
	f.BoolVar(&flagJSON, "json", false, "Print the full result as JSON")
	_ = askCmd.MarkFlagRequired("db")
}
