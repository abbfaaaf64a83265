package script

import (
	"fmt"
	"strings"
)

// FlowType tags a control-flow block variant.
type FlowType string

const (
	FlowIf    FlowType = "if"
	FlowWhile FlowType = "while"
	FlowFor   FlowType = "for"
	FlowMatch FlowType = "match"
	FlowPipe  FlowType = "pipe"
)

// ControlFlowBlock is the parsed form of a control-flow instruction.
// Exactly one variant's payload is populated: Type determines which of
// the optional fields are non-nil. Conditions, match subjects, and case
// keys stay opaque strings; evaluating them is the condition evaluator
// collaborator's job, not the parser's.
type ControlFlowBlock struct {
	Type      FlowType
	Condition string

	// If / While / For bodies.
	Then []*Instruction
	Else []*Instruction
	Do   []*Instruction

	// For loop bindings.
	Var string
	In  string

	// Match subject and per-case bodies.
	Value string
	Cases map[string][]*Instruction

	// Pipe stages, applied left to right.
	PipeChain []string
}

// flowInstructions is the set of instruction names that carry control flow.
var flowInstructions = map[string]FlowType{
	"if":    FlowIf,
	"while": FlowWhile,
	"for":   FlowFor,
	"match": FlowMatch,
	"pipe":  FlowPipe,
}

// IsControlFlow reports whether the instruction is one of the control-flow
// forms rather than a plain directive.
func IsControlFlow(in *Instruction) bool {
	_, ok := flowInstructions[in.Name]
	return ok
}

// ParseControlFlow builds the tagged block for a control-flow instruction.
// Bodies ("then", "else", "do", case arms) are instruction source strings
// split on ";" and parsed recursively; "cases" arms use the form
// "PATTERN => instructions" separated by ";;".
func ParseControlFlow(in *Instruction) (*ControlFlowBlock, error) {
	flowType, ok := flowInstructions[in.Name]
	if !ok {
		return nil, fmt.Errorf("not a control-flow instruction: $%s", in.Name)
	}
	block := &ControlFlowBlock{Type: flowType}

	switch flowType {
	case FlowIf:
		block.Condition = in.Arg("cond")
		if block.Condition == "" {
			return nil, fmt.Errorf("$if requires a cond argument")
		}
		block.Then = parseInstructionList(in.Arg("then"))
		block.Else = parseInstructionList(in.Arg("else"))
	case FlowWhile:
		block.Condition = in.Arg("cond")
		if block.Condition == "" {
			return nil, fmt.Errorf("$while requires a cond argument")
		}
		block.Do = parseInstructionList(in.Arg("do"))
	case FlowFor:
		block.Var = in.Arg("var")
		block.In = in.Arg("in")
		if block.Var == "" || block.In == "" {
			return nil, fmt.Errorf("$for requires var and in arguments")
		}
		block.Do = parseInstructionList(in.Arg("do"))
	case FlowMatch:
		block.Value = in.Arg("value")
		block.Cases = parseCases(in.Arg("cases"))
	case FlowPipe:
		for _, stage := range strings.Split(in.Arg("chain"), "|") {
			if stage = strings.TrimSpace(stage); stage != "" {
				block.PipeChain = append(block.PipeChain, stage)
			}
		}
		if len(block.PipeChain) == 0 {
			return nil, fmt.Errorf("$pipe requires a non-empty chain")
		}
	}
	return block, nil
}

// parseInstructionList parses ";"-separated instruction source text.
// The "$" prefix is optional inside bodies. Fragments that do not parse
// are dropped rather than failing the block.
func parseInstructionList(src string) []*Instruction {
	var out []*Instruction
	for _, part := range splitOutsideQuotes(src, ";") {
		if !strings.HasPrefix(part, "$") {
			part = "$" + part
		}
		if instr := ParseInstructionLine(part); instr != nil {
			out = append(out, instr)
		}
	}
	return out
}

func parseCases(src string) map[string][]*Instruction {
	cases := map[string][]*Instruction{}
	for _, arm := range strings.Split(src, ";;") {
		arm = strings.TrimSpace(arm)
		if arm == "" {
			continue
		}
		idx := strings.Index(arm, "=>")
		if idx < 0 {
			continue
		}
		pattern := strings.TrimSpace(arm[:idx])
		cases[pattern] = parseInstructionList(arm[idx+2:])
	}
	return cases
}

// splitOutsideQuotes splits on sep, ignoring separators inside single or
// double quotes so instruction arguments may contain them.
func splitOutsideQuotes(src, sep string) []string {
	var parts []string
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			sb.WriteByte(c)
		case strings.HasPrefix(src[i:], sep):
			parts = append(parts, strings.TrimSpace(sb.String()))
			sb.Reset()
			i += len(sep) - 1
		default:
			sb.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}
