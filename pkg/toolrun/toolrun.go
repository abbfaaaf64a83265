// Package toolrun executes script tool calls as local commands.
package toolrun

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-script/pkg/value"
)

// RunError wraps a failed command with its combined output so callers
// can surface what the tool printed.
type RunError struct {
	Tool   string
	Err    error
	Output string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, strings.TrimSpace(e.Output))
}

func (e *RunError) Unwrap() error { return e.Err }

// Shell runs tools as executables found on PATH. Arguments are passed
// as --key value pairs in sorted key order so invocations are
// deterministic.
type Shell struct {
	log *logrus.Entry
}

// NewShell creates a PATH-backed tool runner.
func NewShell() *Shell {
	return &Shell{log: logrus.WithField("component", "toolrun")}
}

// Run implements the engine's ToolRunner contract.
func (s *Shell) Run(ctx context.Context, toolName string, args value.Map) (string, error) {
	path, err := exec.LookPath(toolName)
	if err != nil {
		return "", fmt.Errorf("tool %s not on PATH: %w", toolName, err)
	}

	argv := flagArgs(args)
	s.log.WithFields(logrus.Fields{"tool": toolName, "args": strings.Join(argv, " ")}).Debug("Running tool")

	cmd := exec.CommandContext(ctx, path, argv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &RunError{Tool: toolName, Err: err, Output: string(out)}
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// flagArgs renders an argument map as command-line flags. The sole
// positional convention is "input", which is appended last as a bare
// argument so piped text reads naturally.
func flagArgs(args value.Map) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if k != "input" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var argv []string
	for _, k := range keys {
		argv = append(argv, "--"+k, args[k].String())
	}
	if input, ok := args["input"]; ok {
		argv = append(argv, input.String())
	}
	return argv
}
