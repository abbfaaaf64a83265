package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-script/pkg/engine"
	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/value"
)

func executeSrc(t *testing.T, eng *engine.Engine, src string, vars value.Map) *engine.Result {
	t.Helper()
	scr := script.Parse([]byte(src), "instr.ai.yaml")
	result, err := eng.Execute(context.Background(), scr, vars)
	require.NoError(t, err)
	return result
}

func TestSetInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)

	result := executeSrc(t, eng, "---\n$set(name=greeting, value='hi {{who}}')\n$emit: '{{greeting}}'", value.Map{"who": value.String("all")})
	assert.Equal(t, "hi all", result.Text)
	assert.Equal(t, "hi all", result.Variables["greeting"].Str())

	// Colon form.
	result = executeSrc(t, eng, "---\n$set: mode=fast\n$emit: '{{mode}}'", nil)
	assert.Equal(t, "fast", result.Text)
}

func TestUnsetInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	result := executeSrc(t, eng, "---\n$unset(name=secret)\n$emit: '[{{secret}}]'", value.Map{"secret": value.String("hidden")})
	assert.Equal(t, "[]", result.Text)
	assert.NotContains(t, result.Variables, "secret")
}

func TestEmitCollectsOutput(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	result := executeSrc(t, eng, "---\n$emit: 'one'\n$emit: 'two'", nil)
	assert.Equal(t, "one\ntwo", result.Text)
}

func TestInputInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)

	// Provided by the caller: kept as-is.
	result := executeSrc(t, eng, "---\n$input(name=file)\n$emit: '{{file}}'", value.Map{"file": value.String("main.go")})
	assert.Equal(t, "main.go", result.Text)

	// Absent with a default: the default binds.
	result = executeSrc(t, eng, "---\n$input(name=style, default=terse)\n$emit: '{{style}}'", nil)
	assert.Equal(t, "terse", result.Text)

	// Absent with no default: the invocation fails early.
	scr := script.Parse([]byte("---\n$input(name=required_thing)"), "instr.ai.yaml")
	res, err := eng.Execute(context.Background(), scr, nil)
	require.Error(t, err)
	assert.Equal(t, engine.StateFailed, res.State)
	assert.Contains(t, err.Error(), "required_thing")
}

func TestIfInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)

	result := executeSrc(t, eng, `---
$if(cond='{{ready}}', then='emit(text=go)', else='emit(text=wait)')`, value.Map{"ready": value.String("yes")})
	assert.Equal(t, "go", result.Text)

	result = executeSrc(t, eng, `---
$if(cond='{{ready}}', then='emit(text=go)', else='emit(text=wait)')`, value.Map{"ready": value.String("false")})
	assert.Equal(t, "wait", result.Text)
}

func TestWhileInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	// The body flips the condition off after the first iteration.
	result := executeSrc(t, eng, `---
$while(cond='{{more}}', do='emit(text=once); set(name=more, value=false)')`, value.Map{"more": value.String("yes")})
	assert.Equal(t, "once", result.Text)
	assert.Equal(t, "false", result.Variables["more"].Str())
}

func TestWhileInstructionIterationGuard(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	scr := script.Parse([]byte(`---
$while(cond='always', do='set(name=x, value=1)')`), "instr.ai.yaml")
	_, err := eng.Execute(context.Background(), scr, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations")
}

func TestForInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	vars := value.Map{"files": value.List(value.String("a.go"), value.String("b.go"))}
	result := executeSrc(t, eng, `---
$for(var=f, in=files, do='emit(text={{f}})')`, vars)
	assert.Equal(t, "a.go\nb.go", result.Text)
}

func TestMatchInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	src := `---
$match(value='{{mode}}', cases='fast => emit(text=quick) ;; slow => emit(text=careful) ;; _ => emit(text=fallback)')`

	result := executeSrc(t, eng, src, value.Map{"mode": value.String("fast")})
	assert.Equal(t, "quick", result.Text)

	result = executeSrc(t, eng, src, value.Map{"mode": value.String("other")})
	assert.Equal(t, "fallback", result.Text)
}

func TestPipeInstruction(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	result := executeSrc(t, eng, `---
$pipe(chain='emit(text=from-pipe) | set(name=out)')`, nil)
	assert.Equal(t, "from-pipe", result.Variables["out"].Str())
}

func TestToolInstructionGate(t *testing.T) {
	obs := &recordingObserver{}
	gate := &denyingGate{allowed: map[string]bool{"safe_tool": true}}
	eng := engine.New(engine.Config{
		Provider: &fakeProvider{},
		Observer: obs,
		Tools:    gate,
	})

	// Allowed tools pass the gate without a permission request.
	result := executeSrc(t, eng, "---\n$tool(name=safe_tool)", nil)
	assert.Equal(t, engine.StateCompleted, result.State)
	assert.Empty(t, gate.requested)

	// Denied tools do not fail the turn.
	result = executeSrc(t, eng, "---\n$tool(name=scary_tool)\n$emit: 'survived'", nil)
	assert.Equal(t, engine.StateCompleted, result.State)
	assert.Equal(t, []string{"scary_tool"}, gate.requested)
	assert.Equal(t, "survived", result.Text)

	assert.Equal(t, []string{"safe_tool", "scary_tool"}, obs.tools)
}

type denyingGate struct {
	allowed   map[string]bool
	requested []string
}

func (g *denyingGate) IsAllowed(name string, args value.Map) bool {
	return g.allowed[name]
}

func (g *denyingGate) RequestPermission(name string, args value.Map) engine.ToolDecision {
	g.requested = append(g.requested, name)
	return engine.DecisionDenied
}

func TestUnknownInstructionFailsTurn(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	scr := script.Parse([]byte("---\n$definitely_not_a_thing"), "instr.ai.yaml")
	res, err := eng.Execute(context.Background(), scr, nil)
	require.Error(t, err)
	assert.Equal(t, engine.StateFailed, res.State)
}

func TestFailedTurnRestoresVariables(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	scr := script.Parse([]byte("---\n$set(name=a, value=changed)\n$definitely_not_a_thing"), "instr.ai.yaml")

	res, err := eng.Execute(context.Background(), scr, value.Map{"a": value.String("orig")})
	require.Error(t, err)
	// The failed turn's partial mutation is rolled back.
	assert.Equal(t, "orig", res.Variables["a"].Str())
}

// pickyEvaluator records every condition it sees and approves only
// those naming an allowed pattern.
type pickyEvaluator struct {
	seen  []string
	allow string
}

func (p *pickyEvaluator) Evaluate(condition string, _ value.Map) (bool, error) {
	p.seen = append(p.seen, condition)
	return strings.HasSuffix(condition, "== "+p.allow), nil
}

func TestMatchDelegatesCasesToEvaluator(t *testing.T) {
	eval := &pickyEvaluator{allow: "slow"}
	eng := engine.New(engine.Config{
		Provider:   &fakeProvider{},
		Conditions: eval,
	})

	// The evaluator picks the arm; the engine never compares strings
	// itself, so a subject that textually equals "fast" still lands on
	// the arm the evaluator approved.
	result := executeSrc(t, eng, `---
$match(value='{{mode}}', cases='fast => emit(text=quick) ;; slow => emit(text=careful)')`, value.Map{"mode": value.String("fast")})
	assert.Equal(t, "careful", result.Text)

	// Each arm reaches the evaluator as an opaque "value == pattern"
	// condition, case keys and match value unrendered.
	assert.Equal(t, []string{"{{mode}} == fast", "{{mode}} == slow"}, eval.seen)
}
