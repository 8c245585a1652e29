package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const decisionFormat = `Respond with ONLY a JSON object. No markdown fences. No commentary.

To call a tool:
{"use_tool": true, "tool_name": "<exact tool name>", "arguments": {"<param>": "<value>"}}

To answer the user directly:
{"use_tool": false, "answer": "<final answer>"}

Tool names and parameters MUST match the tools listed above. Call one tool at a time; its output will be shown to you before you decide again.`

// toolDecision is the JSON object the model answers with on every round.
type toolDecision struct {
	UseTool   bool
	ToolName  string
	Arguments map[string]any
	Answer    string
}

func (a *Agent) buildPrompt(userInput string, history []exchange, executions []ToolExecution) string {
	var sb strings.Builder
	sb.Grow(4096)

	sb.WriteString(a.systemPrompt)

	if len(a.instructions) > 0 {
		sb.WriteString("\n\nInstructions:\n")
		for i, in := range a.instructions {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, in)
		}
	}

	tools := a.renderTools()
	if tools != "" {
		sb.WriteString("\n\n")
		sb.WriteString(tools)
	}

	if len(history) > 0 {
		sb.WriteString("\n\nConversation memory:\n")
		for _, ex := range history {
			fmt.Fprintf(&sb, "user: %s\n", escapePromptContent(ex.user))
			fmt.Fprintf(&sb, "assistant: %s\n", escapePromptContent(ex.assistant))
		}
	}

	if len(executions) > 0 {
		sb.WriteString("\n\nTool results so far:\n")
		for i, exec := range executions {
			args, _ := json.Marshal(exec.ToolArgs)
			fmt.Fprintf(&sb, "%d. %s %s\n", i+1, exec.ToolName, args)
			fmt.Fprintf(&sb, "   result: %s\n", truncate(escapePromptContent(fmt.Sprint(exec.Result)), maxToolResultPrompt))
		}
	}

	sb.WriteString("\n\nCurrent user message:\n")
	sb.WriteString(userInput)

	if tools != "" {
		sb.WriteString("\n\n")
		sb.WriteString(decisionFormat)
		sb.WriteString("\n")
	} else {
		sb.WriteString("\n\nCompose the best possible assistant reply.\n")
	}
	return sb.String()
}

// renderTools formats the available tool specs into a prompt-friendly block.
func (a *Agent) renderTools() string {
	specs := a.ToolSpecs()
	if len(specs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, spec := range specs {
		fmt.Fprintf(&sb, "- %s: %s\n", spec.Name, spec.Description)
		if len(spec.InputSchema) > 0 {
			if schemaJSON, err := json.Marshal(spec.InputSchema); err == nil {
				sb.WriteString("  Input schema: ")
				sb.Write(schemaJSON)
				sb.WriteString("\n")
			}
		}
		for _, ex := range spec.Examples {
			if exJSON, err := json.Marshal(ex); err == nil {
				sb.WriteString("  Example: ")
				sb.Write(exJSON)
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseDecision extracts the first JSON object in text. ok is false when the
// model did not answer with a decision at all.
func parseDecision(text string) (toolDecision, bool) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return toolDecision{}, false
	}

	var payload struct {
		UseTool   *bool           `json:"use_tool"`
		ToolName  string          `json:"tool_name"`
		Arguments json.RawMessage `json:"arguments"`
		Answer    string          `json:"answer"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return toolDecision{}, false
	}
	if payload.UseTool == nil && payload.ToolName == "" && payload.Answer == "" {
		return toolDecision{}, false
	}

	useTool := payload.ToolName != ""
	if payload.UseTool != nil {
		useTool = *payload.UseTool
	}
	return toolDecision{
		UseTool:   useTool,
		ToolName:  strings.TrimSpace(payload.ToolName),
		Arguments: decodeArguments(payload.Arguments),
		Answer:    payload.Answer,
	}, true
}

// decodeArguments accepts either a JSON object or a JSON string holding one.
func decodeArguments(raw json.RawMessage) map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return ParseToolArguments(s)
		}
	}
	return ParseToolArguments(trimmed)
}

// ParseToolArguments decodes a raw argument payload. Objects decode as-is,
// arrays are wrapped under "items" and anything else is kept under "input".
func ParseToolArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	if strings.HasPrefix(raw, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			if payload == nil {
				payload = map[string]any{}
			}
			return payload
		}
	}
	if strings.HasPrefix(raw, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return map[string]any{"items": arr}
		}
	}
	return map[string]any{"input": raw}
}

// extractJSON returns the first balanced {...} block in s, skipping braces
// that appear inside JSON strings.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func escapePromptContent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…(truncated)"
}
