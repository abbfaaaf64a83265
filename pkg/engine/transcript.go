package engine

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/mattsolo1/grove-script/pkg/provider"
)

var roleColors = map[string]*color.Color{
	"system":    color.New(color.FgYellow, color.Bold),
	"user":      color.New(color.FgCyan, color.Bold),
	"assistant": color.New(color.FgGreen, color.Bold),
}

// FormatTranscript renders a chat history for terminal display, one
// block per message with a colored role header. Color output follows
// the usual TTY detection, so piped output stays plain.
func FormatTranscript(history []provider.Message) string {
	if len(history) == 0 {
		return "(empty transcript)\n"
	}

	var sb strings.Builder
	for i, msg := range history {
		if i > 0 {
			sb.WriteString("\n")
		}
		c, ok := roleColors[msg.Role]
		if !ok {
			c = color.New(color.FgWhite, color.Bold)
		}
		sb.WriteString(c.Sprintf("[%s]", msg.Role))
		sb.WriteString("\n")
		sb.WriteString(msg.Content)
		if !strings.HasSuffix(msg.Content, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatResult renders an invocation outcome: the final text plus a
// short footer with state, token, and cost accounting.
func FormatResult(res *Result) string {
	var sb strings.Builder
	if res.Text != "" {
		sb.WriteString(res.Text)
		if !strings.HasSuffix(res.Text, "\n") {
			sb.WriteString("\n")
		}
	}

	footer := fmt.Sprintf("state=%s tokens=%d cost=$%.4f", res.State, res.TotalTokens, res.TotalCost)
	sb.WriteString(color.New(color.Faint).Sprint(footer))
	sb.WriteString("\n")

	if res.Err != nil {
		errLine := fmt.Sprintf("error: %v", res.Err)
		if res.Classification != nil && res.Classification.RecoverySuggestion != "" {
			errLine += "\n" + res.Classification.RecoverySuggestion
		}
		sb.WriteString(color.New(color.FgRed).Sprint(errLine))
		sb.WriteString("\n")
	}
	return sb.String()
}
