package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattsolo1/grove-script/pkg/template"
	"github.com/mattsolo1/grove-script/pkg/value"
)

func TestRender(t *testing.T) {
	vars := value.Map{
		"a": value.Dict(map[string]value.Value{
			"b": value.String("x"),
		}),
		"name":  value.String("hi"),
		"count": value.Number(3),
		"list":  value.List(value.String("one"), value.String("two")),
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no spans is identity", "no vars", "no vars"},
		{"dot path", "{{a.b}}", "x"},
		{"missing variable renders empty", "{{missing}}", ""},
		{"missing nested segment renders empty", "{{a.nope.deep}}", ""},
		{"upper filter", "{{name|upper}}", "HI"},
		{"lower filter", "{{name|upper|lower}}", "hi"},
		{"unknown filter is a no-op", "{{name|sparkle}}", "hi"},
		{"number stringifies cleanly", "{{count}} items", "3 items"},
		{"list index", "{{list.1}}", "two"},
		{"surrounding text", "a {{name}} b", "a hi b"},
		{"multiple spans", "{{name}}-{{a.b}}", "hi-x"},
		{"empty span", "{{}}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, template.Render(tt.text, vars))
		})
	}
}

func TestRenderTrimFilter(t *testing.T) {
	vars := value.Map{"padded": value.String("  spaced  ")}
	assert.Equal(t, "spaced", template.Render("{{padded|trim}}", vars))
}

func TestRenderIsIdempotentWithoutSpans(t *testing.T) {
	text := "already rendered [[gen]] <<script:x>>"
	assert.Equal(t, text, template.Render(text, value.Map{}))
}

func TestHasSpans(t *testing.T) {
	assert.True(t, template.HasSpans("{{a}}"))
	assert.False(t, template.HasSpans("plain"))
	assert.False(t, template.HasSpans("[[a]]"))
}
