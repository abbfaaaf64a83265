package toolrun

import (
	"github.com/mattsolo1/grove-script/pkg/engine"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// Allowlist permits only the named tools. It never escalates: a tool
// outside the list is denied, which surfaces as an inline marker in the
// processed message rather than a hard failure.
type Allowlist struct {
	names map[string]bool
}

// NewAllowlist builds a gate from configured tool names.
func NewAllowlist(names []string) *Allowlist {
	g := &Allowlist{names: make(map[string]bool, len(names))}
	for _, n := range names {
		g.names[n] = true
	}
	return g
}

// IsAllowed implements engine.ToolGate.
func (g *Allowlist) IsAllowed(toolName string, _ value.Map) bool {
	return g.names[toolName]
}

// RequestPermission implements engine.ToolGate.
func (g *Allowlist) RequestPermission(string, value.Map) engine.ToolDecision {
	return engine.DecisionDenied
}
