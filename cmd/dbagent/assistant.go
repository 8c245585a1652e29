package main

import (
	"io"
	"os"
	"strings"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/models"
	"github.com/Protocol-Lattice/go-dbagent/src/tools"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var assistantCmd = &cobra.Command{
	Use:   "assistant [question]",
	Short: "Assistant with horoscope and shell tools",
	Long:  `Answers one question when given arguments, otherwise starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger := env.cfg, env.logger

		model, err := models.NewLLMProvider(ctx, cfg.Provider, cfg.Model, "")
		if err != nil {
			return err
		}
		if c, ok := model.(io.Closer); ok {
			defer c.Close()
		}

		horoscope := tools.NewHoroscopeTool(cfg.HoroscopeAPIKey)
		horoscope.BaseURL = cfg.HoroscopeURL

		ag, err := agent.New(agent.Options{
			Model:  model,
			Tools:  []agent.Tool{horoscope, tools.NewShellTool(cfg.ShellDir)},
			Logger: &logger,
		})
		if err != nil {
			return err
		}

		sessionID := uuid.NewString()
		if len(args) == 0 {
			return chatLoop(cmd, os.Stdin, ag, sessionID)
		}
		resp, err := ag.Run(ctx, sessionID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printResponse(resp)
		return nil
	},
}
