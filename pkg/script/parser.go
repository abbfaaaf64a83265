package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mattsolo1/grove-script/pkg/value"
)

var (
	// roleLineRegex matches "role: rest". The optional "!" suffix marks
	// the message for immediate template formatting.
	roleLineRegex = regexp.MustCompile(`^(\w+)(!)?:\s*(.*)$`)

	// chainLineRegex matches the target of a "-> name(params)" directive.
	chainLineRegex = regexp.MustCompile(`^([\w./\-]+)\s*(?:\((.*)\))?$`)

	// instructionLineRegex matches the "$name" prefix of an instruction.
	instructionLineRegex = regexp.MustCompile(`^\$([A-Za-z_][\w\-]*)\s*(.*)$`)

	// aiPlaceholderRegex matches [[var]] and [[var:params]] tokens.
	aiPlaceholderRegex = regexp.MustCompile(`\[\[([A-Za-z_]\w*)(?::([^\[\]]*))?\]\]`)
)

// Parse turns DSL source text into a Script. Parsing never fails outright:
// malformed front matter degrades to empty front matter, unparseable
// parameter lists degrade to empty maps, and turns that end up with no
// content are dropped.
func Parse(content []byte, sourcePath string) *Script {
	segments := splitSegments(string(content))

	s := &Script{
		Parameters: value.Map{},
		Metadata:   value.Map{},
		SourcePath: sourcePath,
	}
	parseFrontMatter(segments[0], s)

	for _, segment := range segments[1:] {
		turn := parseTurn(segment)
		if turn.Empty() {
			continue
		}
		s.Turns = append(s.Turns, turn)
	}
	return s
}

// splitSegments splits source text on lines that are exactly a front-matter
// delimiter ("---" or "***") at line start. The first segment is the front
// matter; each later segment is one turn.
func splitSegments(src string) []string {
	lines := strings.Split(src, "\n")
	segments := []string{}
	var current []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "---" || trimmed == "***" {
			segments = append(segments, strings.Join(current, "\n"))
			current = nil
			continue
		}
		current = append(current, line)
	}
	return append(segments, strings.Join(current, "\n"))
}

// parseFrontMatter fills the script's front-matter fields from a restricted
// key-value document. Only a YAML subset is consumed: the known keys are
// lifted out and everything else lands in Metadata.
func parseFrontMatter(segment string, s *Script) {
	if strings.TrimSpace(segment) == "" {
		return
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(segment), &raw); err != nil {
		logrus.WithError(err).WithField("source", s.SourcePath).
			Debug("malformed front matter, continuing with empty front matter")
		return
	}
	for key, item := range raw {
		switch key {
		case "parameters":
			if m := value.FromAny(item).Fields(); m != nil {
				s.Parameters = value.Map(m)
			}
		case "input":
			s.Input = toStringList(item)
		case "output":
			if m := value.FromAny(item).Fields(); m != nil {
				s.Output = value.Map(m)
			}
		case "response_format":
			if m := value.FromAny(item).Fields(); m != nil {
				s.ResponseFormat = value.Map(m)
			}
		default:
			s.Metadata[key] = value.FromAny(item)
		}
	}
}

func toStringList(raw interface{}) []string {
	switch t := raw.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	}
	return nil
}

// turnScanner accumulates one message at a time during the forward scan
// over a turn's lines.
type turnScanner struct {
	turn *Turn

	role            string
	immediateFormat bool
	lines           []string
	open            bool
	multiline       bool
}

func parseTurn(segment string) *Turn {
	sc := &turnScanner{turn: &Turn{}}

	for _, line := range strings.Split(segment, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		// Blank and comment lines are skipped, but keep their newline
		// inside an active multi-line block.
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if sc.open && sc.multiline {
				sc.lines = append(sc.lines, "")
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "->"):
			sc.closeMessage()
			sc.parseChain(strings.TrimSpace(trimmed[2:]))
		case strings.HasPrefix(trimmed, "$"):
			sc.closeMessage()
			sc.parseInstruction(trimmed)
		case sc.open && sc.multiline:
			// An active multi-line block takes every non-directive line
			// verbatim, so "key: value" text inside it never starts a
			// new message.
			sc.continuation(line)
		default:
			if m := roleLineRegex.FindStringSubmatch(trimmed); m != nil {
				sc.closeMessage()
				sc.startMessage(m[1], m[2] == "!", m[3])
			} else {
				sc.continuation(line)
			}
		}
	}
	sc.closeMessage()
	return sc.turn
}

func (sc *turnScanner) startMessage(role string, immediate bool, rest string) {
	sc.role = role
	sc.immediateFormat = immediate
	sc.lines = nil
	sc.open = true
	sc.multiline = false

	switch rest {
	case "|", "|-":
		sc.multiline = true
	case "":
	default:
		sc.lines = append(sc.lines, rest)
	}
}

func (sc *turnScanner) continuation(line string) {
	if !sc.open {
		// Content before any role line becomes an implicit user message.
		sc.startMessage("user", false, "")
	}
	if sc.multiline {
		sc.lines = append(sc.lines, line)
		return
	}
	sc.lines = append(sc.lines, strings.TrimRight(line, " \t"))
}

// closeMessage finalizes the message under construction, scanning its
// content for an AI placeholder token.
func (sc *turnScanner) closeMessage() {
	if !sc.open {
		return
	}
	sc.open = false

	content := strings.TrimRight(strings.Join(sc.lines, "\n"), "\n")
	if content == "" {
		return
	}

	msg := &Message{
		Role:            sc.role,
		Content:         content,
		ImmediateFormat: sc.immediateFormat,
	}
	if m := aiPlaceholderRegex.FindStringSubmatch(content); m != nil {
		params, err := ParseKVArgs(m[2])
		if err != nil {
			params = value.Map{}
		}
		msg.AIPlaceholder = &AIPlaceholder{
			Var:         m[1],
			Params:      params,
			Placeholder: m[0],
		}
	}
	sc.turn.Messages = append(sc.turn.Messages, msg)
}

func (sc *turnScanner) parseChain(rest string) {
	m := chainLineRegex.FindStringSubmatch(rest)
	if m == nil {
		return
	}
	sc.turn.ChainTo = m[1]
	params, err := ParseKVArgs(m[2])
	if err != nil {
		params = value.Map{}
	}
	sc.turn.ChainParams = params
}

func (sc *turnScanner) parseInstruction(line string) {
	if instr := ParseInstructionLine(line); instr != nil {
		sc.turn.Instructions = append(sc.turn.Instructions, instr)
	}
}

// ParseInstructionLine parses a single "$name", "$name: value", or
// "$name(args)" directive. Returns nil when the line is not an
// instruction at all; an unparseable argument list degrades to an empty
// argument map.
func ParseInstructionLine(line string) *Instruction {
	m := instructionLineRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil
	}
	instr := &Instruction{Name: m[1], Args: value.Map{}}

	rest := m[2]
	switch {
	case rest == "":
		// Bare $name form.
	case strings.HasPrefix(rest, ":"):
		instr.RawContent = unquote(strings.TrimSpace(rest[1:]))
	case strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")"):
		args, err := ParseKVArgs(rest[1 : len(rest)-1])
		if err != nil {
			args = value.Map{}
		}
		instr.Args = args
	default:
		instr.RawContent = unquote(rest)
	}
	return instr
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseKVArgs parses a key=value parameter list as used by chain
// directives, function-call instructions, and placeholder params. Values
// may be single-quoted, double-quoted, or bare; bare true/false and
// numbers are coerced. Pairs are separated by commas or whitespace. A key
// with no "=" becomes a boolean flag.
func ParseKVArgs(s string) (value.Map, error) {
	args := value.Map{}
	i, n := 0, len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && isWordByte(s[i]) {
			i++
		}
		if i == start {
			return args, fmt.Errorf("unexpected character %q at offset %d", s[i], i)
		}
		key := s[start:i]
		for i < n && s[i] == ' ' {
			i++
		}
		if i >= n || s[i] != '=' {
			args[key] = value.Bool(true)
			continue
		}
		i++
		for i < n && s[i] == ' ' {
			i++
		}
		if i < n && (s[i] == '\'' || s[i] == '"') {
			quote := s[i]
			i++
			var sb strings.Builder
			for i < n && s[i] != quote {
				if s[i] == '\\' && i+1 < n {
					i++
				}
				sb.WriteByte(s[i])
				i++
			}
			if i >= n {
				return args, fmt.Errorf("unterminated quote in %q", s)
			}
			i++
			args[key] = value.String(sb.String())
			continue
		}
		start = i
		for i < n && s[i] != ',' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		args[key] = coerceBare(s[start:i])
	}
	return args, nil
}

func isWordByte(b byte) bool {
	return b == '_' || b == '-' || b == '.' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func coerceBare(s string) value.Value {
	switch s {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null", "":
		return value.Null()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(n)
	}
	return value.String(s)
}
