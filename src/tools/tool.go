// Package tools contains the agent tools: SQL database access, CSV
// querying, shell execution and the horoscope lookup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

type handlerFunc func(ctx context.Context, args map[string]any) (string, error)

// funcTool adapts a spec and a handler to agent.Tool.
type funcTool struct {
	spec agent.ToolSpec
	run  handlerFunc
}

func newTool(spec agent.ToolSpec, run handlerFunc) agent.Tool {
	return &funcTool{spec: spec, run: run}
}

func (t *funcTool) Spec() agent.ToolSpec { return t.spec }

func (t *funcTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.run(ctx, args)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: out}, nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing %q argument", key)
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("argument %q is empty", key)
	}
	return s, nil
}

// intArg reads an integer argument. JSON numbers arrive as float64 and some
// models quote them, so both are accepted.
func intArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(i), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
}

// stringsArg reads a list of strings. A single string is split on spaces.
func stringsArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing %q argument", key)
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case string:
		return strings.Fields(list), nil
	default:
		return nil, fmt.Errorf("argument %q must be a list of strings", key)
	}
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
