package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrDuplicateTool is returned when two tools share a name, ignoring case.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrInvalidTool is returned for tools the model could not call.
	ErrInvalidTool = errors.New("invalid tool")
)

// Providers only accept function-style names.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// toolset is the fixed set of tools an Agent dispatches to. It is built once
// in New and never mutated, so lookups need no locking.
type toolset struct {
	entries []toolEntry
	index   map[string]int
}

type toolEntry struct {
	tool Tool
	spec ToolSpec
}

// newToolset validates tools and reports every conflict at once. Nil tools
// are skipped.
func newToolset(tools []Tool) (*toolset, error) {
	ts := &toolset{index: make(map[string]int, len(tools))}
	var errs []error
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		if err := ts.add(tool); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ts, nil
}

func (ts *toolset) add(tool Tool) error {
	spec := tool.Spec()
	spec.Name = strings.TrimSpace(spec.Name)
	if !toolNamePattern.MatchString(spec.Name) {
		return fmt.Errorf("%w: name %q must start with a letter and use only letters, digits, '_' or '-'", ErrInvalidTool, spec.Name)
	}
	if typ, ok := spec.InputSchema["type"]; ok && typ != "object" {
		return fmt.Errorf("%w: input schema of %s must describe an object, got %v", ErrInvalidTool, spec.Name, typ)
	}

	key := strings.ToLower(spec.Name)
	if i, taken := ts.index[key]; taken {
		return fmt.Errorf("%w: %s conflicts with %s", ErrDuplicateTool, spec.Name, ts.entries[i].spec.Name)
	}
	ts.index[key] = len(ts.entries)
	ts.entries = append(ts.entries, toolEntry{tool: tool, spec: spec})
	return nil
}

// lookup resolves a model-supplied name, ignoring case and surrounding space.
func (ts *toolset) lookup(name string) (toolEntry, bool) {
	i, ok := ts.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return toolEntry{}, false
	}
	return ts.entries[i], true
}

func (ts *toolset) specs() []ToolSpec {
	out := make([]ToolSpec, len(ts.entries))
	for i, e := range ts.entries {
		out[i] = e.spec
	}
	return out
}
