package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

func TestShellToolRunsCommand(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"args": []any{"echo", "hello", "world"},
	}})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if resp.Content != "hello world" {
		t.Fatalf("unexpected output %q", resp.Content)
	}
}

func TestShellToolTail(t *testing.T) {
	tool := NewShellTool("")
	out, err := tool.Run(context.Background(), []string{"sh", "-c", "printf 'a\\nb\\nc\\n'"}, 2)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out != "b\nc" {
		t.Fatalf("unexpected tail %q", out)
	}
}

func TestShellToolRefusesDeniedCommands(t *testing.T) {
	tool := NewShellTool("")
	for _, args := range [][]string{
		{"rm", "-rf", "/"},
		{"shutdown", "-h", "now"},
		{"dd", "if=/dev/zero", "of=/dev/sda"},
	} {
		_, err := tool.Run(context.Background(), args, 10)
		if !errors.Is(err, ErrCommandDenied) {
			t.Fatalf("expected %v to be denied, got %v", args, err)
		}
	}
}

func TestDeniedCommand(t *testing.T) {
	cases := []struct {
		args   []string
		denied bool
	}{
		{[]string{"rm", "-rf", "/"}, true},
		{[]string{"rm", "-fr", "/*"}, true},
		{[]string{"rm", "--recursive", "--force", "~"}, true},
		{[]string{"rm", "-r", ".."}, true},
		{[]string{"/sbin/reboot"}, true},
		{[]string{"halt"}, true},
		{[]string{"mkfs.ext4", "/dev/sdb1"}, true},
		{[]string{"init", "0"}, true},
		{[]string{"dd", "if=/dev/zero", "of=/dev/nvme0n1"}, true},
		{[]string{"chown", "-R", "nobody", "/srv"}, true},
		{[]string{"chmod", "-R", "777", "/"}, true},
		{[]string{"sudo", "rm", "-rf", "/"}, true},
		{[]string{"env", "FOO=1", "poweroff"}, true},
		{[]string{"sh", "-c", "cd /tmp && rm -rf /"}, true},
		{[]string{"bash", "-c", ":(){ :|:& };:"}, true},
		{[]string{"sh", "-c", "echo x > /dev/sda"}, true},

		{[]string{"cat", "asphalt.csv"}, false},
		{[]string{"echo", "asphalt"}, false},
		{[]string{"echo", "shutdown", "scheduled"}, false},
		{[]string{"grep", "-r", "halt", "."}, false},
		{[]string{"rm", "-rf", "./build"}, false},
		{[]string{"rm", "/tmp/x"}, false},
		{[]string{"dd", "if=in.img", "of=out.img"}, false},
		{[]string{"chmod", "-R", "755", "./bin"}, false},
		{[]string{"init", "--version"}, false},
		{[]string{"sh", "-c", "echo hi > /dev/null; ls -l"}, false},
	}
	for _, tc := range cases {
		reason, denied := deniedCommand(tc.args)
		if denied != tc.denied {
			t.Fatalf("deniedCommand(%q) = %v (%q), want %v", tc.args, denied, reason, tc.denied)
		}
	}
}

func TestShellToolAllowsLookalikeArguments(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "build", "obj"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	tool := NewShellTool(dir)

	out, err := tool.Run(context.Background(), []string{"echo", "asphalt"}, 10)
	if err != nil || out != "asphalt" {
		t.Fatalf("echo asphalt: got %q, %v", out, err)
	}
	if _, err := tool.Run(context.Background(), []string{"rm", "-rf", "./build"}, 10); err != nil {
		t.Fatalf("rm -rf ./build should run, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "build")); !os.IsNotExist(err) {
		t.Fatalf("expected build directory to be removed, stat err %v", err)
	}
}

func TestShellToolReportsFailure(t *testing.T) {
	tool := NewShellTool("")
	_, err := tool.Run(context.Background(), []string{"sh", "-c", "echo oops; exit 3"}, 10)
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("expected failure with output, got %v", err)
	}
	if _, err := tool.Run(context.Background(), nil, 10); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestTailLines(t *testing.T) {
	if got := tailLines("1\n2\n3\n", 0); got != "1\n2\n3" {
		t.Fatalf("unexpected %q", got)
	}
	if got := tailLines("1\n2\n3", 5); got != "1\n2\n3" {
		t.Fatalf("unexpected %q", got)
	}
}
