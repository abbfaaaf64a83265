package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/template"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// runInstruction executes one instruction and returns its textual
// output (empty for pure side effects). Control-flow forms dispatch to
// the condition evaluator collaborator; everything else is a builtin.
func (e *Engine) runInstruction(ctx context.Context, scr *script.Script, in *script.Instruction, ec *ExecutionContext, result *Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if script.IsControlFlow(in) {
		block, err := script.ParseControlFlow(in)
		if err != nil {
			return "", err
		}
		return e.runControlFlow(ctx, scr, block, ec, result)
	}

	switch in.Name {
	case "set":
		return "", e.runSet(in, ec)
	case "unset":
		delete(ec.Variables, in.Arg("name"))
		return "", nil
	case "emit":
		return e.runEmit(in, ec), nil
	case "input":
		return "", e.runInput(in, ec)
	case "tool":
		return e.runTool(ctx, in, ec)
	}
	return "", fmt.Errorf("unknown instruction $%s", in.Name)
}

// runSet binds a variable. Both forms are accepted: $set(name=x,
// value=y) and $set: x=y via raw content.
func (e *Engine) runSet(in *script.Instruction, ec *ExecutionContext) error {
	name := in.Arg("name")
	if name != "" {
		raw := in.Arg("value")
		if raw == "" {
			// Piped input stands in for a missing value argument.
			raw = in.Arg("input")
		}
		ec.Variables[name] = value.String(template.Render(raw, ec.Variables))
		return nil
	}

	if eq := strings.Index(in.RawContent, "="); eq > 0 {
		name = strings.TrimSpace(in.RawContent[:eq])
		raw := strings.TrimSpace(in.RawContent[eq+1:])
		ec.Variables[name] = value.String(template.Render(raw, ec.Variables))
		return nil
	}
	return fmt.Errorf("$set requires name and value")
}

// runEmit renders its text and records it as invocation output.
func (e *Engine) runEmit(in *script.Instruction, ec *ExecutionContext) string {
	text := in.Arg("text")
	if text == "" {
		text = in.Arg("input")
	}
	if text == "" {
		text = in.RawContent
	}
	text = template.Render(text, ec.Variables)
	ec.emitted = append(ec.emitted, text)
	return text
}

// runInput ensures a declared input variable is bound, falling back to
// a default when the caller supplied nothing. Missing inputs with no
// default are an error so scripts fail early instead of rendering empty
// prompts.
func (e *Engine) runInput(in *script.Instruction, ec *ExecutionContext) error {
	name := in.Arg("name")
	if name == "" {
		return fmt.Errorf("$input requires a name")
	}
	if _, ok := ec.Variables[name]; ok {
		return nil
	}
	if def, ok := in.Args["default"]; ok {
		ec.Variables[name] = def
		return nil
	}
	return fmt.Errorf("required input %q was not provided", name)
}

// runTool gates a tool invocation through the permission collaborator
// and, when allowed and a runner is configured, executes it. Denied and
// skipped tools produce inline markers rather than failing the turn;
// NEEDS_APPROVAL surfaces as an error so the caller can re-run after
// approval.
func (e *Engine) runTool(ctx context.Context, in *script.Instruction, ec *ExecutionContext) (string, error) {
	name := in.Arg("name")
	if name == "" {
		return "", fmt.Errorf("$tool requires a name")
	}

	args := value.Map{}
	for k, v := range in.Args {
		if k != "name" {
			args[k] = value.String(template.Render(v.String(), ec.Variables))
		}
	}

	decision := DecisionAllowed
	if !e.tools.IsAllowed(name, args) {
		decision = e.tools.RequestPermission(name, args)
	}
	e.observer.RecordToolCall(name, decision)

	switch decision {
	case DecisionAllowed:
	case DecisionDenied:
		return fmt.Sprintf("[tool %s denied]", name), nil
	case DecisionSkipped:
		return fmt.Sprintf("[tool %s skipped]", name), nil
	case DecisionNeedsApproval:
		return "", fmt.Errorf("tool %q needs approval", name)
	default:
		return "", fmt.Errorf("tool %q: unrecognized permission decision %q", name, decision)
	}

	if e.toolRunner == nil {
		e.log.WithField("tool", name).Debug("No tool runner configured, skipping execution")
		return "", nil
	}
	out, err := e.toolRunner.Run(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", name, err)
	}
	return out, nil
}

// runControlFlow executes one tagged control-flow block. Outputs of the
// executed body instructions are concatenated with newlines.
func (e *Engine) runControlFlow(ctx context.Context, scr *script.Script, block *script.ControlFlowBlock, ec *ExecutionContext, result *Result) (string, error) {
	switch block.Type {
	case script.FlowIf:
		ok, err := e.conditions.Evaluate(block.Condition, ec.Variables)
		if err != nil {
			return "", fmt.Errorf("evaluate %q: %w", block.Condition, err)
		}
		if ok {
			return e.runInstructionList(ctx, scr, block.Then, ec, result)
		}
		return e.runInstructionList(ctx, scr, block.Else, ec, result)

	case script.FlowWhile:
		var outputs []string
		for i := 0; ; i++ {
			if i >= maxLoopIterations {
				return "", fmt.Errorf("$while exceeded %d iterations", maxLoopIterations)
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			ok, err := e.conditions.Evaluate(block.Condition, ec.Variables)
			if err != nil {
				return "", fmt.Errorf("evaluate %q: %w", block.Condition, err)
			}
			if !ok {
				break
			}
			out, err := e.runInstructionList(ctx, scr, block.Do, ec, result)
			if err != nil {
				return "", err
			}
			if out != "" {
				outputs = append(outputs, out)
			}
		}
		return strings.Join(outputs, "\n"), nil

	case script.FlowFor:
		items, ok := value.Lookup(ec.Variables, block.In)
		if !ok {
			return "", nil
		}
		var outputs []string
		for _, item := range items.Items() {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			ec.Variables[block.Var] = item
			out, err := e.runInstructionList(ctx, scr, block.Do, ec, result)
			if err != nil {
				return "", err
			}
			if out != "" {
				outputs = append(outputs, out)
			}
		}
		return strings.Join(outputs, "\n"), nil

	case script.FlowMatch:
		// Case selection is the evaluator's call: each arm is handed
		// over as an opaque "value == pattern" condition, in sorted
		// pattern order so overlapping arms resolve deterministically.
		patterns := make([]string, 0, len(block.Cases))
		for pattern := range block.Cases {
			if pattern != "_" {
				patterns = append(patterns, pattern)
			}
		}
		sort.Strings(patterns)
		for _, pattern := range patterns {
			cond := block.Value + " == " + pattern
			ok, err := e.conditions.Evaluate(cond, ec.Variables)
			if err != nil {
				return "", fmt.Errorf("evaluate %q: %w", cond, err)
			}
			if ok {
				return e.runInstructionList(ctx, scr, block.Cases[pattern], ec, result)
			}
		}
		if body, ok := block.Cases["_"]; ok {
			return e.runInstructionList(ctx, scr, body, ec, result)
		}
		return "", nil

	case script.FlowPipe:
		var out string
		for _, stage := range block.PipeChain {
			if !strings.HasPrefix(stage, "$") {
				stage = "$" + stage
			}
			in := script.ParseInstructionLine(stage)
			if in == nil {
				return "", fmt.Errorf("$pipe: bad stage %q", stage)
			}
			if out != "" {
				if in.Args == nil {
					in.Args = value.Map{}
				}
				in.Args["input"] = value.String(out)
			}
			var err error
			out, err = e.runInstruction(ctx, scr, in, ec, result)
			if err != nil {
				return "", fmt.Errorf("$pipe stage %q: %w", stage, err)
			}
		}
		return out, nil
	}
	return "", fmt.Errorf("unrecognized control-flow type %q", block.Type)
}

func (e *Engine) runInstructionList(ctx context.Context, scr *script.Script, list []*script.Instruction, ec *ExecutionContext, result *Result) (string, error) {
	var outputs []string
	for _, in := range list {
		out, err := e.runInstruction(ctx, scr, in, ec, result)
		if err != nil {
			return "", err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return strings.Join(outputs, "\n"), nil
}
