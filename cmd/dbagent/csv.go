package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	agent "github.com/Protocol-Lattice/go-dbagent"
	"github.com/Protocol-Lattice/go-dbagent/src/models"
	"github.com/Protocol-Lattice/go-dbagent/src/result"
	"github.com/Protocol-Lattice/go-dbagent/src/tools"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var flagCSVFiles []string

var csvCmd = &cobra.Command{
	Use:   "csv --file <path> [--file <path>...]",
	Short: "Chat with CSV files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger := env.cfg, env.logger

		toolkit, err := tools.NewCSVToolkit(flagCSVFiles...)
		if err != nil {
			return err
		}
		defer toolkit.Close()

		model, err := models.NewLLMProvider(ctx, cfg.Provider, cfg.Model, "")
		if err != nil {
			return err
		}
		if c, ok := model.(io.Closer); ok {
			defer c.Close()
		}

		ag, err := agent.New(agent.Options{
			Model:        model,
			SystemPrompt: "You answer questions about CSV files by querying them with the available tools.",
			Instructions: tools.CSVInstructions,
			Tools:        toolkit.Tools(),
			Logger:       &logger,
		})
		if err != nil {
			return err
		}

		pterm.DefaultHeader.Println("dbagent csv")
		pterm.Println("Files: " + strings.Join(toolkit.Names(), ", "))
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(`Type a question, or "exit" to quit.`))
		return chatLoop(cmd, os.Stdin, ag, uuid.NewString())
	},
}

// chatLoop reads questions line by line until EOF or an exit command.
func chatLoop(cmd *cobra.Command, in io.Reader, ag *agent.Agent, sessionID string) error {
	ctx := cmd.Context()
	sc := bufio.NewScanner(in)
	for {
		pterm.Print(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("> "))
		if !sc.Scan() {
			pterm.Println()
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "bye":
			return nil
		}

		spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Thinking...")
		resp, err := ag.Run(ctx, sessionID, line)
		if spinner != nil {
			_ = spinner.Stop()
		}
		if err != nil {
			pterm.Error.Println(err)
			continue
		}
		printResponse(resp)
	}
}

func printResponse(resp agent.Response) {
	out := result.Normalize(resp)
	for _, call := range out.Tools {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("• %s %v", call.Name, call.Arguments))
	}
	pterm.Println(out.Text)
	pterm.Println()
}

func init() {
	csvCmd.Flags().StringArrayVar(&flagCSVFiles, "file", nil, "CSV file to expose (repeatable)")
	_ = csvCmd.MarkFlagRequired("file")
}
