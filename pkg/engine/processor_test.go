package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-script/pkg/cache"
	"github.com/mattsolo1/grove-script/pkg/engine"
	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// runSingleTurn executes a one-message script and returns the processed
// content from the resulting history.
func runSingleTurn(t *testing.T, src string, vars value.Map, eng *engine.Engine) string {
	t.Helper()
	scr := script.Parse([]byte(src), "proc.ai.yaml")
	result, err := eng.Execute(context.Background(), scr, vars)
	require.NoError(t, err)
	require.NotEmpty(t, result.History)
	return result.History[len(result.History)-1].Content
}

func TestRegexReplacementNoMatchLeavesValueUnchanged(t *testing.T) {
	// Deliberate semantics: a pattern that does not match substitutes
	// the variable's value unchanged, never the pattern or empty text.
	eng := newTestEngine(&fakeProvider{}, nil)
	out := runSingleTurn(t, `---
user: <<regex:v:/\d+/>>`, value.Map{"v": value.String("abc")}, eng)
	assert.Equal(t, "abc", out)
}

func TestRegexReplacementCaptureGroups(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	vars := value.Map{"out": value.String("version v42 ready")}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"group one preferred", `---
user: <<regex:out:/v(\d+)/>>`, "42"},
		{"whole match fallback", `---
user: <<regex:out:/ready/>>`, "ready"},
		{"named group", `---
user: <<regex:out:/v(?P<num>\d+)/:num>>`, "42"},
		{"indexed group", `---
user: <<regex:out:/(v)(\d+)/:2>>`, "42"},
		{"index out of range is empty", `---
user: <<regex:out:/v(\d+)/:7>>`, ""},
		{"case insensitive flag", `---
user: <<regex:out:/VERSION/i>>`, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runSingleTurn(t, tt.src, vars, eng))
		})
	}
}

func TestRegexReplacementMissingVariable(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	out := runSingleTurn(t, `---
user: <<regex:absent:/x/>>`, nil, eng)
	assert.Equal(t, "", out)
}

func TestTemplatePositionDependsOnImmediateFormat(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	vars := value.Map{
		"ph": value.String(`<<regex:v:/(\d+)/>>`),
		"v":  value.String("id 77"),
	}

	// Immediate format renders templates before replacement resolution,
	// so a placeholder carried in a variable gets resolved.
	out := runSingleTurn(t, "---\nuser!: {{ph}}", vars, eng)
	assert.Equal(t, "77", out)

	// The default renders templates after replacements: the placeholder
	// text surfaces too late to be resolved.
	out = runSingleTurn(t, "---\nuser: {{ph}}", vars, eng)
	assert.Equal(t, `<<regex:v:/(\d+)/>>`, out)
}

func TestInstructionReplacement(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	out := runSingleTurn(t, "---\nuser: say <<instr:emit(text='hi {{who}}')>>", value.Map{"who": value.String("there")}, eng)
	assert.Equal(t, "say hi there", out)
}

func TestInstructionReplacementFailureBecomesMarker(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, nil)
	out := runSingleTurn(t, "---\nuser: <<instr:nonexistent>> still here", nil, eng)
	assert.Contains(t, out, "[error:")
	assert.Contains(t, out, "still here")
}

func TestScriptReplacement(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "parent.ai.yaml")
	require.NoError(t, os.WriteFile(parent, []byte("---\nuser: intro <<script:child(who='world')>> outro"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "child.ai.yaml"), []byte("---\n$emit: 'hello {{who}}'"), 0o644))

	loader := script.NewLoader()
	eng := engine.New(engine.Config{Loader: loader, Provider: &fakeProvider{}})

	scr, err := loader.Load(parent)
	require.NoError(t, err)
	result, err := eng.Execute(context.Background(), scr, nil)
	require.NoError(t, err)
	assert.Equal(t, "intro hello world outro", result.History[0].Content)
}

func TestScriptReplacementFailureBecomesMarker(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "parent.ai.yaml")
	require.NoError(t, os.WriteFile(parent, []byte("---\nuser: before <<script:missing>> after"), 0o644))

	loader := script.NewLoader()
	eng := engine.New(engine.Config{Loader: loader, Provider: &fakeProvider{}})

	scr, err := loader.Load(parent)
	require.NoError(t, err)
	result, err := eng.Execute(context.Background(), scr, nil)
	require.NoError(t, err)
	out := result.History[0].Content
	assert.Contains(t, out, "[error:")
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestScriptReplacementCachesByTTL(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "parent.ai.yaml")
	require.NoError(t, os.WriteFile(parent, []byte("---\nuser: <<script:counted>> <<script:counted>>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counted.ai.yaml"), []byte("cache_ttl: 60\n---\n$emit: 'expensive'"), 0o644))

	store := cache.NewMemory()
	loader := script.NewLoader()
	eng := engine.New(engine.Config{Loader: loader, Provider: &fakeProvider{}, Cache: store})

	scr, err := loader.Load(parent)
	require.NoError(t, err)
	result, err := eng.Execute(context.Background(), scr, nil)
	require.NoError(t, err)
	assert.Equal(t, "expensive expensive", result.History[0].Content)
	// The second occurrence hit the cache entry written by the first.
	assert.Equal(t, 1, store.Len())
}
