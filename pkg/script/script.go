// Package script defines the prompt-script data model and the DSL parser.
// A script is front matter plus an ordered list of turns; each turn holds
// messages, instructions, and an optional chain directive. Scripts are
// immutable once parsed and are shared freely between invocations.
package script

import (
	"github.com/mattsolo1/grove-script/pkg/value"
)

// Extension is the file suffix for script files. A directory-form script
// resolves an entry point named <dirname>.ai.yaml inside the directory.
const Extension = ".ai.yaml"

// Script is one parsed unit of the prompt DSL.
type Script struct {
	// Parameters are the default variables declared in front matter.
	Parameters value.Map

	// Input lists the variable names the script expects from its caller.
	// Nil when the front matter declares none.
	Input []string

	// Output and ResponseFormat describe the structured output the script
	// requests from the model. Both are optional front-matter maps.
	Output         value.Map
	ResponseFormat value.Map

	// Turns execute strictly in source order.
	Turns []*Turn

	// Metadata holds every front-matter key not consumed above.
	Metadata value.Map

	// SourcePath is where the script was loaded from. Sub-script
	// references resolve relative to its directory.
	SourcePath string
}

// Turn is one delimiter-separated section of a script.
type Turn struct {
	Messages     []*Message
	Instructions []*Instruction

	// ChainTo names the script this turn hands off to, if any. Chaining
	// is the terminal action of an invocation.
	ChainTo     string
	ChainParams value.Map
}

// Empty reports whether the turn carries nothing and should be dropped.
func (t *Turn) Empty() bool {
	return len(t.Messages) == 0 && len(t.Instructions) == 0 && t.ChainTo == ""
}

// Message is a single chat message with unresolved placeholders.
type Message struct {
	// Role is an arbitrary token, not a closed enum. "system", "user"
	// and "assistant" are the common ones.
	Role    string
	Content string

	// ImmediateFormat selects the early template pass: variables are
	// rendered before replacement placeholders are resolved instead of
	// after. Marked in the DSL with a "!" role suffix (e.g. "user!:").
	ImmediateFormat bool

	// AIPlaceholder marks where model output is spliced into the
	// content, and the variable the output is stored under.
	AIPlaceholder *AIPlaceholder
}

// AIPlaceholder is the parsed [[var]] or [[var:params]] token.
type AIPlaceholder struct {
	Var    string
	Params value.Map

	// Placeholder is the exact substring in the original content that
	// the completion replaces.
	Placeholder string
}

// Instruction is a $name directive. Semantics are owned by the execution
// engine; the parser only records the name and arguments.
type Instruction struct {
	Name string
	Args value.Map

	// RawContent is the unparsed value of the "$name: value" form.
	RawContent string
}

// Arg returns the named argument rendered as text, or "" when absent.
func (in *Instruction) Arg(name string) string {
	v, ok := in.Args[name]
	if !ok {
		return ""
	}
	return v.String()
}
