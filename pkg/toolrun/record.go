package toolrun

import (
	"context"
	"strings"

	"github.com/mattsolo1/grove-script/pkg/value"
)

// Recorder is a ToolRunner double for tests. It records every
// invocation instead of executing anything.
type Recorder struct {
	// Calls holds "name --k v" style renderings of each invocation.
	Calls []string

	// RunFunc overrides the returned output and error when set.
	RunFunc func(toolName string, args value.Map) (string, error)
}

// Run implements the engine's ToolRunner contract.
func (r *Recorder) Run(_ context.Context, toolName string, args value.Map) (string, error) {
	parts := append([]string{toolName}, flagArgs(args)...)
	r.Calls = append(r.Calls, strings.Join(parts, " "))

	if r.RunFunc != nil {
		return r.RunFunc(toolName, args)
	}
	return "", nil
}
