package agent

import "context"

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema map[string]any   `json:"input_schema,omitempty"`
	Examples    []map[string]any `json:"examples,omitempty"`
	// StopAfterCall makes the tool output the final answer of the run.
	StopAfterCall bool `json:"-"`
}

// ToolRequest is passed to a tool when the model selects it.
type ToolRequest struct {
	SessionID string
	Arguments map[string]any
}

// ToolResponse is what a tool hands back to the agent loop.
type ToolResponse struct {
	Content  string
	Metadata map[string]string
}

// Tool is an action the agent can perform on behalf of the model.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error)
}
