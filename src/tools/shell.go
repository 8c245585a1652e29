package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

const (
	RunShellCommandTool = "run_shell_command"
	defaultShellTail    = 100
	defaultShellTimeout = 2 * time.Minute
)

// deniedPrograms are refused whatever their arguments.
var deniedPrograms = map[string]bool{
	"shutdown": true,
	"reboot":   true,
	"halt":     true,
	"poweroff": true,
}

// shellPrograms have their -c script checked command by command.
var shellPrograms = map[string]bool{"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true}

// wrapperPrograms run the command that follows them.
var wrapperPrograms = map[string]bool{"sudo": true, "env": true, "nohup": true, "exec": true, "command": true, "time": true}

// rootTargets are paths a recursive rm must never touch.
var rootTargets = map[string]bool{"/": true, "/*": true, "~": true, "~/": true, "~/*": true, ".": true, "./": true, "..": true, "*": true}

var blockDevicePrefixes = []string{"/dev/sd", "/dev/hd", "/dev/vd", "/dev/xvd", "/dev/nvme", "/dev/mmcblk", "/dev/disk"}

// ErrCommandDenied is returned for commands matching the deny list.
var ErrCommandDenied = errors.New("command denied")

// ShellTool runs a program directly, without a shell, and returns the tail
// of its combined output.
type ShellTool struct {
	// Dir is the working directory; empty means the current one.
	Dir     string
	Timeout time.Duration
}

// NewShellTool creates a ShellTool running in dir.
func NewShellTool(dir string) *ShellTool {
	return &ShellTool{Dir: dir, Timeout: defaultShellTimeout}
}

func (s *ShellTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        RunShellCommandTool,
		Description: "Run a command and return the last lines of its output. Pass the program and its arguments as a list, e.g. [\"ls\", \"-l\"].",
		InputSchema: objectSchema([]string{"args"}, map[string]any{
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Program followed by its arguments.",
			},
			"tail": prop("integer", fmt.Sprintf("Number of trailing output lines to return. Defaults to %d.", defaultShellTail)),
		}),
	}
}

func (s *ShellTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	args, err := stringsArg(req.Arguments, "args")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	tail, err := intArg(req.Arguments, "tail", defaultShellTail)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	out, err := s.Run(ctx, args, tail)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: out}, nil
}

// Run executes args and returns the last tail lines of output.
func (s *ShellTool) Run(ctx context.Context, args []string, tail int) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("no command given")
	}
	if reason, denied := deniedCommand(args); denied {
		return "", fmt.Errorf("%w: %s", ErrCommandDenied, reason)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.Dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := tailLines(buf.String(), tail)
	if err != nil {
		return "", fmt.Errorf("%s: %w\n%s", args[0], err, out)
	}
	return out, nil
}

// deniedCommand inspects argv by program name and whole arguments, so
// "cat asphalt.csv" or "rm -rf ./build" pass while "rm -rf /" does not.
func deniedCommand(args []string) (string, bool) {
	for len(args) > 0 && wrapperPrograms[filepath.Base(args[0])] {
		args = args[1:]
		for len(args) > 0 && (strings.HasPrefix(args[0], "-") || strings.Contains(args[0], "=")) {
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return "", false
	}
	for _, a := range args {
		if strings.Contains(strings.Join(strings.Fields(a), ""), ":(){") {
			return "fork bomb", true
		}
	}
	for i, a := range args {
		if target, ok := strings.CutPrefix(a, ">"); ok {
			if target == "" && i+1 < len(args) {
				target = args[i+1]
			}
			if isBlockDevice(target) {
				return "write to " + target, true
			}
		}
	}

	prog := filepath.Base(args[0])
	rest := args[1:]
	switch {
	case deniedPrograms[prog]:
		return prog, true
	case strings.HasPrefix(prog, "mkfs"):
		return prog, true
	case prog == "init" && len(rest) > 0 && (rest[0] == "0" || rest[0] == "6"):
		return "init " + rest[0], true
	case prog == "rm":
		if hasFlag(rest, 'r', "--recursive") || hasFlag(rest, 'R', "--recursive") {
			for _, a := range operands(rest) {
				if rootTargets[a] {
					return "recursive rm of " + a, true
				}
			}
		}
	case prog == "dd":
		for _, a := range rest {
			if target, ok := strings.CutPrefix(a, "of="); ok && isBlockDevice(target) {
				return "dd to " + target, true
			}
		}
	case prog == "chown":
		if hasFlag(rest, 'R', "--recursive") {
			return "recursive chown", true
		}
	case prog == "chmod":
		if hasFlag(rest, 'R', "--recursive") {
			for _, a := range operands(rest) {
				if rootTargets[a] {
					return "recursive chmod of " + a, true
				}
			}
		}
	case shellPrograms[prog]:
		for i, a := range rest {
			if a != "-c" || i+1 >= len(rest) {
				continue
			}
			for _, line := range strings.FieldsFunc(rest[i+1], isCommandSeparator) {
				if reason, denied := deniedCommand(strings.Fields(line)); denied {
					return reason, true
				}
			}
		}
	}
	return "", false
}

// hasFlag reports whether args set the single-letter flag short, alone or
// bundled like -rf, or its long form.
func hasFlag(args []string, short rune, long string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == long {
			return true
		}
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsRune(a[1:], short) {
			return true
		}
	}
	return false
}

func operands(args []string) []string {
	var out []string
	flags := true
	for _, a := range args {
		if flags && a == "--" {
			flags = false
			continue
		}
		if flags && strings.HasPrefix(a, "-") && a != "-" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func isBlockDevice(path string) bool {
	for _, p := range blockDevicePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isCommandSeparator(r rune) bool {
	return r == ';' || r == '&' || r == '|' || r == '\n'
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if n <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

var _ agent.Tool = (*ShellTool)(nil)
