// Package result flattens agent responses into the shape returned by the
// query endpoint.
package result

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

// SQLToolName is the tool whose "query" argument is surfaced as the SQL of a
// result.
const SQLToolName = "run_sql_query"

const unknownTool = "unknown"

// ToolInvocation is one tool call as reported to clients.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result,omitempty"`
	SQL       string         `json:"sql,omitempty"`
}

// Result is the flattened answer to a prompt.
type Result struct {
	Prompt   string           `json:"prompt"`
	Response string           `json:"response"`
	SQL      *string          `json:"sql"`
	Tools    []ToolInvocation `json:"tool_calls"`
	// ExecutionTime is in milliseconds, rounded to two decimals.
	ExecutionTime float64 `json:"execution_time"`
	DatabaseType  string  `json:"database_type"`
}

// Extracted is what Normalize pulls out of a response.
type Extracted struct {
	Text  string
	SQL   *string
	Tools []ToolInvocation
}

// Normalize extracts text, tool invocations and the first SQL statement from
// resp. It accepts any value and never panics; unknown values are rendered
// with fmt.
func Normalize(resp any) Extracted {
	tools := invocations(resp)
	return Extracted{
		Text:  text(resp),
		SQL:   firstSQL(tools),
		Tools: tools,
	}
}

// Build assembles a Result from a raw agent response.
func Build(prompt string, resp any, elapsed time.Duration, dialect string) Result {
	ex := Normalize(resp)
	return Result{
		Prompt:        prompt,
		Response:      ex.Text,
		SQL:           ex.SQL,
		Tools:         ex.Tools,
		ExecutionTime: Milliseconds(elapsed),
		DatabaseType:  dialect,
	}
}

// Milliseconds converts d to milliseconds rounded to two decimals.
func Milliseconds(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}

func invocations(resp any) []ToolInvocation {
	switch r := resp.(type) {
	case agent.ToolRunResponse:
		if len(r.Tools) > 0 {
			return fromExecutions(r.Tools)
		}
	case *agent.ToolRunResponse:
		if r != nil && len(r.Tools) > 0 {
			return fromExecutions(r.Tools)
		}
	case agent.ToolCallResponse:
		if len(r.ToolCalls) > 0 {
			return fromCalls(r.ToolCalls)
		}
	case *agent.ToolCallResponse:
		if r != nil && len(r.ToolCalls) > 0 {
			return fromCalls(r.ToolCalls)
		}
	}
	return []ToolInvocation{}
}

func fromExecutions(execs []agent.ToolExecution) []ToolInvocation {
	out := make([]ToolInvocation, 0, len(execs))
	for _, e := range execs {
		name := e.ToolName
		if strings.TrimSpace(name) == "" {
			name = unknownTool
		}
		args := e.ToolArgs
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, withSQL(ToolInvocation{Name: name, Arguments: args, Result: e.Result}))
	}
	return out
}

func fromCalls(calls []agent.ToolCall) []ToolInvocation {
	out := make([]ToolInvocation, 0, len(calls))
	for _, c := range calls {
		name := c.Function.Name
		if strings.TrimSpace(name) == "" {
			name = unknownTool
		}
		out = append(out, withSQL(ToolInvocation{Name: name, Arguments: decodeArguments(c.Function.Arguments)}))
	}
	return out
}

// decodeArguments decodes a JSON object. Anything else is kept verbatim
// under "input".
func decodeArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"input": raw}
	}
	return args
}

func withSQL(inv ToolInvocation) ToolInvocation {
	if inv.Name != SQLToolName {
		return inv
	}
	if q, ok := inv.Arguments["query"]; ok {
		inv.SQL = stringify(q)
	}
	return inv
}

func firstSQL(tools []ToolInvocation) *string {
	for _, t := range tools {
		if t.Name != SQLToolName {
			continue
		}
		if q, ok := t.Arguments["query"]; ok {
			s := stringify(q)
			return &s
		}
	}
	return nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func text(resp any) string {
	switch r := resp.(type) {
	case nil:
		return ""
	case agent.TextResponse:
		return string(r)
	case *agent.TextResponse:
		if r == nil {
			return ""
		}
		return string(*r)
	case agent.ToolRunResponse:
		return r.Content
	case *agent.ToolRunResponse:
		if r == nil {
			return ""
		}
		return r.Content
	case agent.ToolCallResponse:
		return r.Content
	case *agent.ToolCallResponse:
		if r == nil {
			return ""
		}
		return r.Content
	case string:
		return r
	default:
		return fmt.Sprint(r)
	}
}
