package models

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DummyLLM is a lightweight model implementation useful for local testing without API calls.
//
// With Responses set it replays them in order, repeating the last one once
// the script is exhausted. Otherwise it echoes the last non-empty prompt line.
type DummyLLM struct {
	Prefix    string
	Responses []string

	mu   sync.Mutex
	next int
}

func NewDummyLLM(prefix string, responses ...string) *DummyLLM {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyLLM{Prefix: prefix, Responses: responses}
}

func (d *DummyLLM) Generate(_ context.Context, prompt string) (any, error) {
	if scripted, ok := d.scripted(); ok {
		return scripted, nil
	}

	lines := strings.Split(prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return fmt.Sprintf("%s %s", d.Prefix, last), nil
}

func (d *DummyLLM) scripted() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Responses) == 0 {
		return "", false
	}
	i := d.next
	if i >= len(d.Responses) {
		i = len(d.Responses) - 1
	} else {
		d.next++
	}
	return d.Responses[i], true
}

var _ Agent = (*DummyLLM)(nil)
