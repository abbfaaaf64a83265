package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/value"
)

func parse(t *testing.T, src string) *script.Script {
	t.Helper()
	return script.Parse([]byte(src), "test.ai.yaml")
}

func TestParseRoleLines(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantRole    string
		wantContent string
	}{
		{
			name:        "single line",
			content:     "---\nuser: hello",
			wantRole:    "user",
			wantContent: "hello",
		},
		{
			name:        "continuation line",
			content:     "---\nuser: hello\nworld",
			wantRole:    "user",
			wantContent: "hello\nworld",
		},
		{
			name:        "multiline block",
			content:     "---\nsystem: |\nline1\nline2",
			wantRole:    "system",
			wantContent: "line1\nline2",
		},
		{
			name:        "multiline strip block",
			content:     "---\nsystem: |-\nline1\nline2",
			wantRole:    "system",
			wantContent: "line1\nline2",
		},
		{
			name:        "arbitrary role token",
			content:     "---\nnarrator: once upon a time",
			wantRole:    "narrator",
			wantContent: "once upon a time",
		},
		{
			name:        "implicit user message",
			content:     "---\njust some text",
			wantRole:    "user",
			wantContent: "just some text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parse(t, tt.content)
			require.Len(t, s.Turns, 1)
			require.Len(t, s.Turns[0].Messages, 1)
			msg := s.Turns[0].Messages[0]
			assert.Equal(t, tt.wantRole, msg.Role)
			assert.Equal(t, tt.wantContent, msg.Content)
		})
	}
}

func TestParseImmediateFormatMarker(t *testing.T) {
	s := parse(t, "---\nuser!: format me early")
	require.Len(t, s.Turns, 1)
	require.Len(t, s.Turns[0].Messages, 1)
	assert.True(t, s.Turns[0].Messages[0].ImmediateFormat)
	assert.Equal(t, "user", s.Turns[0].Messages[0].Role)

	s = parse(t, "---\nuser: format me late")
	assert.False(t, s.Turns[0].Messages[0].ImmediateFormat)
}

func TestParseChainDirective(t *testing.T) {
	s := parse(t, "---\nuser: hi\n-> next(foo='bar')")
	require.Len(t, s.Turns, 1)
	turn := s.Turns[0]
	assert.Equal(t, "next", turn.ChainTo)
	require.Contains(t, turn.ChainParams, "foo")
	assert.Equal(t, "bar", turn.ChainParams["foo"].Str())
}

func TestParseChainDirectiveWithoutParams(t *testing.T) {
	s := parse(t, "---\n-> followup/step-two")
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "followup/step-two", s.Turns[0].ChainTo)
	assert.Empty(t, s.Turns[0].ChainParams)
}

func TestParseInstructions(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantName string
		wantArgs value.Map
		wantRaw  string
	}{
		{
			name:     "bare form",
			line:     "$checkpoint",
			wantName: "checkpoint",
			wantArgs: value.Map{},
		},
		{
			name:     "colon form",
			line:     "$emit: 'hello there'",
			wantName: "emit",
			wantArgs: value.Map{},
			wantRaw:  "hello there",
		},
		{
			name:     "call form",
			line:     "$set(name=greeting, value='hi')",
			wantName: "set",
			wantArgs: value.Map{"name": value.String("greeting"), "value": value.String("hi")},
		},
		{
			name:     "call form with numbers and booleans",
			line:     "$retry(count=3, fatal=false)",
			wantName: "retry",
			wantArgs: value.Map{"count": value.Number(3), "fatal": value.Bool(false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parse(t, "---\n"+tt.line)
			require.Len(t, s.Turns, 1)
			require.Len(t, s.Turns[0].Instructions, 1)
			in := s.Turns[0].Instructions[0]
			assert.Equal(t, tt.wantName, in.Name)
			assert.Equal(t, tt.wantArgs, in.Args)
			assert.Equal(t, tt.wantRaw, in.RawContent)
		})
	}
}

func TestParseMalformedInstructionArgsDegrade(t *testing.T) {
	s := parse(t, "---\n$set(@@@)")
	require.Len(t, s.Turns, 1)
	require.Len(t, s.Turns[0].Instructions, 1)
	// The unparseable list degrades to empty args, not a parse failure.
	assert.Equal(t, "set", s.Turns[0].Instructions[0].Name)
	assert.Empty(t, s.Turns[0].Instructions[0].Args)
}

func TestParseFrontMatter(t *testing.T) {
	src := `parameters:
  style: terse
input:
  - file
model: small-local
---
user: review {{file}}`

	s := parse(t, src)
	require.Contains(t, s.Parameters, "style")
	assert.Equal(t, "terse", s.Parameters["style"].Str())
	assert.Equal(t, []string{"file"}, s.Input)
	require.Contains(t, s.Metadata, "model")
	assert.Equal(t, "small-local", s.Metadata["model"].Str())
	require.Len(t, s.Turns, 1)
}

func TestParseMalformedFrontMatterDegrades(t *testing.T) {
	s := parse(t, "{{not yaml: [\n---\nuser: still works")
	assert.Empty(t, s.Parameters)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "still works", s.Turns[0].Messages[0].Content)
}

func TestParseDropsEmptyTurns(t *testing.T) {
	src := "---\nuser: first\n---\n\n# just a comment\n---\nuser: second"
	s := parse(t, src)
	require.Len(t, s.Turns, 2)
	assert.Equal(t, "first", s.Turns[0].Messages[0].Content)
	assert.Equal(t, "second", s.Turns[1].Messages[0].Content)
}

func TestParseStarDelimiter(t *testing.T) {
	s := parse(t, "---\nuser: one\n***\nuser: two")
	require.Len(t, s.Turns, 2)
}

func TestParseAIPlaceholder(t *testing.T) {
	s := parse(t, "---\nassistant: [[answer]]")
	require.Len(t, s.Turns, 1)
	msg := s.Turns[0].Messages[0]
	require.NotNil(t, msg.AIPlaceholder)
	assert.Equal(t, "answer", msg.AIPlaceholder.Var)
	assert.Equal(t, "[[answer]]", msg.AIPlaceholder.Placeholder)
	assert.Empty(t, msg.AIPlaceholder.Params)
}

func TestParseAIPlaceholderWithParams(t *testing.T) {
	s := parse(t, "---\nassistant: [[answer:model='big-cloud' temperature=0.2]]")
	msg := s.Turns[0].Messages[0]
	require.NotNil(t, msg.AIPlaceholder)
	assert.Equal(t, "answer", msg.AIPlaceholder.Var)
	assert.Equal(t, "big-cloud", msg.AIPlaceholder.Params["model"].Str())
	assert.InDelta(t, 0.2, msg.AIPlaceholder.Params["temperature"].Num(), 1e-9)
}

func TestParseCommentsAndBlanksInMultiline(t *testing.T) {
	// Blank and comment lines vanish outside multi-line blocks but
	// preserve a newline inside one.
	src := "---\nsystem: |\nline1\n# kept as gap\nline2"
	s := parse(t, src)
	assert.Equal(t, "line1\n\nline2", s.Turns[0].Messages[0].Content)

	src = "---\nuser: a\n# dropped entirely\nb"
	s = parse(t, src)
	assert.Equal(t, "a\nb", s.Turns[0].Messages[0].Content)
}

func TestParseTwiceIsStructurallyIdentical(t *testing.T) {
	src := `parameters:
  a: 1
---
system: |
you are a reviewer
---
user: review {{file}} <<regex:ver:/v(\d+)/>>
$set(name=x, value=y)
-> next(foo=true)`

	first := script.Parse([]byte(src), "same.ai.yaml")
	second := script.Parse([]byte(src), "same.ai.yaml")
	assert.Equal(t, first, second)
}

func TestParseMultipleMessagesPerTurn(t *testing.T) {
	s := parse(t, "---\nsystem: be brief\nuser: hello")
	require.Len(t, s.Turns, 1)
	require.Len(t, s.Turns[0].Messages, 2)
	assert.Equal(t, "system", s.Turns[0].Messages[0].Role)
	assert.Equal(t, "user", s.Turns[0].Messages[1].Role)
}

func TestParseKVArgs(t *testing.T) {
	args, err := script.ParseKVArgs(`a='one' b="two" c=3 d=true e`)
	require.NoError(t, err)
	assert.Equal(t, "one", args["a"].Str())
	assert.Equal(t, "two", args["b"].Str())
	assert.Equal(t, float64(3), args["c"].Num())
	assert.True(t, args["d"].Boolean())
	assert.True(t, args["e"].Boolean())

	_, err = script.ParseKVArgs("a='unterminated")
	assert.Error(t, err)
}

func TestParseMultilineBlockKeepsColonLines(t *testing.T) {
	// Lines shaped like "key: value" inside a multi-line block are
	// content, not new messages; only directive lines end the block.
	src := "---\nsystem: |\nExample output:\nname: Alice\nage: 30"
	s := parse(t, src)
	require.Len(t, s.Turns, 1)
	require.Len(t, s.Turns[0].Messages, 1)
	msg := s.Turns[0].Messages[0]
	assert.Equal(t, "system", msg.Role)
	assert.Equal(t, "Example output:\nname: Alice\nage: 30", msg.Content)

	// A directive line still terminates the block.
	src = "---\nsystem: |\nstatus: ok\n$set(name=done, value=yes)"
	s = parse(t, src)
	require.Len(t, s.Turns[0].Messages, 1)
	assert.Equal(t, "status: ok", s.Turns[0].Messages[0].Content)
	require.Len(t, s.Turns[0].Instructions, 1)
	assert.Equal(t, "set", s.Turns[0].Instructions[0].Name)
}
