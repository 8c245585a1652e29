package agent

import (
	"encoding/json"
	"fmt"
)

// Response is the result of a single Run. It is one of ToolRunResponse,
// ToolCallResponse or TextResponse.
type Response interface {
	isResponse()
}

// ToolExecution records a tool that actually ran during a Run.
type ToolExecution struct {
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
	Result   any            `json:"result"`
}

// ToolRunResponse is returned when at least one tool executed.
type ToolRunResponse struct {
	Content string
	Tools   []ToolExecution
}

// FunctionCall names a function and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a proposed call that has not been executed.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolCallResponse carries calls the model asked for but the agent did not
// run, either because it is in plan-only mode or because the round limit was
// reached.
type ToolCallResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// TextResponse is a plain answer produced without any tool activity.
type TextResponse string

func (ToolRunResponse) isResponse()  {}
func (ToolCallResponse) isResponse() {}
func (TextResponse) isResponse()     {}

// NewToolCall builds a function-type ToolCall, encoding args as JSON.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%q", fmt.Sprint(args)))
	}
	return ToolCall{
		ID:   id,
		Type: "function",
		Function: FunctionCall{
			Name:      name,
			Arguments: string(encoded),
		},
	}
}
