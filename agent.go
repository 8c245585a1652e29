// Package agent runs a language model in a tool-calling loop.
//
// The model is asked to answer with a small JSON decision. When it picks a
// tool the agent invokes it, feeds the output back and asks again until the
// model answers directly, a stop-after-call tool fires, or the round limit is
// reached.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/go-dbagent/src/models"
	"github.com/rs/zerolog"
)

const (
	defaultSystemPrompt  = "You are a helpful assistant. Answer accurately and concisely, and use the available tools whenever they are needed to answer."
	defaultMaxToolRounds = 6
	defaultHistoryWindow = 4
	maxToolResultPrompt  = 4000
)

// Agent couples a model with a tool catalog and a short per-session
// conversation history.
type Agent struct {
	model         models.Agent
	systemPrompt  string
	instructions  []string
	tools         *toolset
	maxToolRounds int
	historyWindow int
	planOnly      bool
	logger        zerolog.Logger

	mu      sync.Mutex
	history map[string][]exchange
}

// Options configure a new Agent.
type Options struct {
	Model        models.Agent
	SystemPrompt string
	// Instructions are appended to the system prompt as a numbered list.
	Instructions []string
	// Tools must have distinct, function-style names; New reports every
	// conflict.
	Tools []Tool
	// MaxToolRounds bounds how many tools run in a single Run. Defaults to 6.
	MaxToolRounds int
	// HistoryWindow is the number of earlier exchanges replayed into the
	// prompt. Defaults to 4; negative disables history.
	HistoryWindow int
	// PlanOnly returns proposed tool calls instead of executing them.
	PlanOnly bool
	Logger   *zerolog.Logger
}

type exchange struct {
	user      string
	assistant string
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("agent requires a language model")
	}

	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	rounds := opts.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}

	window := opts.HistoryWindow
	switch {
	case window == 0:
		window = defaultHistoryWindow
	case window < 0:
		window = 0
	}

	tools, err := newToolset(opts.Tools)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	instructions := make([]string, 0, len(opts.Instructions))
	for _, in := range opts.Instructions {
		if in = strings.TrimSpace(in); in != "" {
			instructions = append(instructions, in)
		}
	}

	return &Agent{
		model:         opts.Model,
		systemPrompt:  systemPrompt,
		instructions:  instructions,
		tools:         tools,
		maxToolRounds: rounds,
		historyWindow: window,
		planOnly:      opts.PlanOnly,
		logger:        logger,
		history:       make(map[string][]exchange),
	}, nil
}

// Run answers userInput for sessionID, calling tools as the model requests.
func (a *Agent) Run(ctx context.Context, sessionID, userInput string) (Response, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, errors.New("user input is empty")
	}

	history := a.recentHistory(sessionID)
	hasTools := len(a.tools.entries) > 0
	var executions []ToolExecution

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := a.model.Generate(ctx, a.buildPrompt(userInput, history, executions))
		if err != nil {
			return nil, fmt.Errorf("model generate: %w", err)
		}
		text := completionText(raw)

		decision, ok := parseDecision(text)
		if !hasTools || !ok || !decision.UseTool || strings.TrimSpace(decision.ToolName) == "" {
			answer := text
			if ok && strings.TrimSpace(decision.Answer) != "" {
				answer = strings.TrimSpace(decision.Answer)
			}
			return a.finish(sessionID, userInput, answer, executions), nil
		}

		call := NewToolCall(fmt.Sprintf("call_%d", round+1), decision.ToolName, decision.Arguments)

		if a.planOnly {
			content := strings.TrimSpace(decision.Answer)
			if content == "" {
				content = fmt.Sprintf("Proposed call to %s.", decision.ToolName)
			}
			a.remember(sessionID, userInput, content)
			return ToolCallResponse{Content: content, ToolCalls: []ToolCall{call}}, nil
		}

		if round >= a.maxToolRounds {
			content := fmt.Sprintf("Stopped after %d tool calls without a final answer.", a.maxToolRounds)
			a.logger.Warn().Str("session_id", sessionID).Int("rounds", a.maxToolRounds).Msg("tool round limit reached")
			a.remember(sessionID, userInput, content)
			if len(executions) > 0 {
				return ToolRunResponse{Content: content, Tools: executions}, nil
			}
			return ToolCallResponse{Content: content, ToolCalls: []ToolCall{call}}, nil
		}

		exec, stop := a.invokeTool(ctx, sessionID, decision.ToolName, decision.Arguments)
		executions = append(executions, exec)
		if stop {
			return a.finish(sessionID, userInput, fmt.Sprint(exec.Result), executions), nil
		}
	}
}

// invokeTool runs a single tool. Failures are recorded as the execution
// result so the model can see them on the next round.
func (a *Agent) invokeTool(ctx context.Context, sessionID, name string, args map[string]any) (ToolExecution, bool) {
	if args == nil {
		args = map[string]any{}
	}
	exec := ToolExecution{ToolName: name, ToolArgs: args}

	entry, ok := a.tools.lookup(name)
	if !ok {
		exec.Result = fmt.Sprintf("error: unknown tool %q", name)
		a.logger.Warn().Str("session_id", sessionID).Str("tool", name).Msg("model requested unknown tool")
		return exec, false
	}
	spec := entry.spec
	exec.ToolName = spec.Name

	resp, err := entry.tool.Invoke(ctx, ToolRequest{SessionID: sessionID, Arguments: args})
	if err != nil {
		exec.Result = "error: " + err.Error()
		a.logger.Debug().Err(err).Str("session_id", sessionID).Str("tool", spec.Name).Msg("tool failed")
		return exec, false
	}
	exec.Result = resp.Content
	a.logger.Debug().Str("session_id", sessionID).Str("tool", spec.Name).Int("bytes", len(resp.Content)).Msg("tool executed")
	return exec, spec.StopAfterCall
}

func (a *Agent) finish(sessionID, userInput, answer string, executions []ToolExecution) Response {
	a.remember(sessionID, userInput, answer)
	if len(executions) > 0 {
		return ToolRunResponse{Content: answer, Tools: executions}
	}
	return TextResponse(answer)
}

// ToolSpecs returns the tool specs in registration order.
func (a *Agent) ToolSpecs() []ToolSpec {
	return a.tools.specs()
}

func (a *Agent) recentHistory(sessionID string) []exchange {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.history[sessionID]
	out := make([]exchange, len(h))
	copy(out, h)
	return out
}

func (a *Agent) remember(sessionID, user, assistant string) {
	if a.historyWindow == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[sessionID], exchange{user: user, assistant: assistant})
	if len(h) > a.historyWindow {
		h = h[len(h)-a.historyWindow:]
	}
	a.history[sessionID] = h
}

func completionText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
