package script

import (
	"regexp"
	"strconv"

	"github.com/mattsolo1/grove-script/pkg/value"
)

// Replacement placeholders are parsed out of message content at
// processing time, not stored on the Message: a message's content keeps
// the raw text and each placeholder records the exact substring it
// replaces. The <<...>> delimiters are disjoint from {{...}} template
// spans and [[...]] AI placeholders, so either template pass leaves
// unresolved replacements intact.
var (
	scriptReplRegex = regexp.MustCompile(`<<script:([\w./\-]+)(?:\(([^)]*)\))?>>`)
	instrReplRegex  = regexp.MustCompile(`<<instr:([A-Za-z_][\w\-]*)(?:\(([^)]*)\))?>>`)
	regexReplRegex  = regexp.MustCompile(`<<regex:([\w.]+):/((?:[^/\\]|\\.)*)/([a-z]*)(?::(\w+))?>>`)
)

// ScriptReplacement substitutes the final result of a sub-script run.
type ScriptReplacement struct {
	ScriptName  string
	Params      value.Map
	Placeholder string
}

// InstructionReplacement substitutes the output of a single instruction
// invoked in isolation.
type InstructionReplacement struct {
	InstructionName string
	Params          value.Map
	Placeholder     string
}

// RegexReplacement substitutes a capture from a variable's value. When
// the pattern does not match, the variable's value is substituted
// unchanged; existing scripts depend on that.
type RegexReplacement struct {
	Pattern  string
	Variable string

	// GroupName selects a named capture group; GroupIndex a numbered
	// one (-1 when not requested). With neither, group 1 is preferred
	// and the whole match is the fallback.
	GroupName  string
	GroupIndex int

	IgnoreCase  bool
	Placeholder string
}

// ExtractScriptReplacements finds every <<script:name(params)>> token.
func ExtractScriptReplacements(content string) []ScriptReplacement {
	var out []ScriptReplacement
	for _, m := range scriptReplRegex.FindAllStringSubmatch(content, -1) {
		params, err := ParseKVArgs(m[2])
		if err != nil {
			params = value.Map{}
		}
		out = append(out, ScriptReplacement{
			ScriptName:  m[1],
			Params:      params,
			Placeholder: m[0],
		})
	}
	return out
}

// ExtractInstructionReplacements finds every <<instr:name(params)>> token.
func ExtractInstructionReplacements(content string) []InstructionReplacement {
	var out []InstructionReplacement
	for _, m := range instrReplRegex.FindAllStringSubmatch(content, -1) {
		params, err := ParseKVArgs(m[2])
		if err != nil {
			params = value.Map{}
		}
		out = append(out, InstructionReplacement{
			InstructionName: m[1],
			Params:          params,
			Placeholder:     m[0],
		})
	}
	return out
}

// ExtractRegexReplacements finds every <<regex:var:/pattern/flags:group>>
// token. The only recognized flag is "i" (case-insensitive); the group
// part may be a capture name or a numeric index.
func ExtractRegexReplacements(content string) []RegexReplacement {
	var out []RegexReplacement
	for _, m := range regexReplRegex.FindAllStringSubmatch(content, -1) {
		r := RegexReplacement{
			Variable:    m[1],
			Pattern:     m[2],
			GroupIndex:  -1,
			Placeholder: m[0],
		}
		for _, flag := range m[3] {
			if flag == 'i' {
				r.IgnoreCase = true
			}
		}
		if group := m[4]; group != "" {
			if idx, err := strconv.Atoi(group); err == nil {
				r.GroupIndex = idx
			} else {
				r.GroupName = group
			}
		}
		out = append(out, r)
	}
	return out
}
