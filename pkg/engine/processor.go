package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/template"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// processMessage resolves a message's content. The ordering is load
// bearing and must not change:
//
//  1. immediate-format messages render templates first
//  2. sub-script replacements
//  3. instruction replacements
//  4. regex replacements
//  5. everything else renders templates last
//
// The two template positions let authors choose whether a replacement
// sees already-substituted variable text or the final pass sees the
// replacement outputs. Replacement failures never abort the message;
// they become inline error markers.
func (e *Engine) processMessage(ctx context.Context, scr *script.Script, msg *script.Message, ec *ExecutionContext, result *Result) string {
	content := msg.Content

	if msg.ImmediateFormat {
		content = template.Render(content, ec.Variables)
	}

	for _, sr := range script.ExtractScriptReplacements(content) {
		resolved, err := e.resolveScriptReplacement(ctx, scr, sr, ec)
		if err != nil {
			e.log.WithError(err).WithField("script", sr.ScriptName).Warn("Sub-script replacement failed")
			resolved = errMarker("script "+sr.ScriptName, err)
		}
		content = strings.Replace(content, sr.Placeholder, resolved, 1)
	}

	for _, ir := range script.ExtractInstructionReplacements(content) {
		in := &script.Instruction{Name: ir.InstructionName, Args: ir.Params}
		resolved, err := e.runInstruction(ctx, scr, in, ec, result)
		if err != nil {
			e.log.WithError(err).WithField("instruction", ir.InstructionName).Warn("Instruction replacement failed")
			resolved = errMarker("instruction "+ir.InstructionName, err)
		}
		content = strings.Replace(content, ir.Placeholder, resolved, 1)
	}

	for _, rr := range script.ExtractRegexReplacements(content) {
		content = strings.Replace(content, rr.Placeholder, resolveRegex(rr, ec.Variables), 1)
	}

	if !msg.ImmediateFormat {
		content = template.Render(content, ec.Variables)
	}
	return content
}

// resolveScriptReplacement runs the named sub-script and returns its
// final textual result. The sub-script sees the caller's variables with
// the replacement's params layered on top, and starts with an empty
// history. Results are cached when the sub-script's front matter sets a
// cache_ttl, keyed by path and parameters.
func (e *Engine) resolveScriptReplacement(ctx context.Context, scr *script.Script, sr script.ScriptReplacement, ec *ExecutionContext) (string, error) {
	if ec.depth >= e.maxChainDepth {
		return "", fmt.Errorf("sub-script depth exceeded %d", e.maxChainDepth)
	}

	sub, err := e.loader.LoadRelative(sr.ScriptName, scr.SourcePath)
	if err != nil {
		return "", err
	}

	run := func() (string, error) {
		subCtx := NewExecutionContext(value.Merge(ec.Variables, sr.Params), nil)
		subCtx.depth = ec.depth + 1
		res, err := e.ExecuteWith(ctx, sub, subCtx)
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}

	ttl := cacheTTL(sub.Metadata)
	if e.cache == nil || ttl <= 0 {
		return run()
	}

	key := subScriptCacheKey(sub.SourcePath, sr.Params)
	cached, err := e.cache.GetOrCompute(key, ttl, func() (interface{}, error) {
		return run()
	})
	if err != nil {
		return "", err
	}
	text, ok := cached.(string)
	if !ok {
		return run()
	}
	return text, nil
}

// cacheTTL reads a cache_ttl front-matter key, in seconds.
func cacheTTL(metadata value.Map) time.Duration {
	v, ok := value.Lookup(metadata, "cache_ttl")
	if !ok {
		return 0
	}
	secs := v.Num()
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func subScriptCacheKey(path string, params value.Map) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(path))
	for _, name := range names {
		fmt.Fprintf(h, "|%s=%s", name, params[name].String())
	}
	return "subscript:" + hex.EncodeToString(h.Sum(nil))
}

// resolveRegex substitutes a capture from a variable's value. A pattern
// that does not match yields the variable's value unchanged; scripts
// depend on that, so it is deliberate, not a fallback of convenience.
func resolveRegex(rr script.RegexReplacement, vars value.Map) string {
	v, ok := value.Lookup(vars, rr.Variable)
	if !ok {
		return ""
	}
	text := v.String()

	pattern := rr.Pattern
	if rr.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errMarker("regex", err)
	}

	match := re.FindStringSubmatch(text)
	if match == nil {
		return text
	}

	if rr.GroupName != "" {
		for i, name := range re.SubexpNames() {
			if name == rr.GroupName && i < len(match) {
				return match[i]
			}
		}
		return ""
	}
	if rr.GroupIndex >= 0 {
		if rr.GroupIndex < len(match) {
			return match[rr.GroupIndex]
		}
		return ""
	}
	if len(match) > 1 {
		return match[1]
	}
	return match[0]
}

// errMarker is the inline text substituted for a failed replacement.
func errMarker(what string, err error) string {
	return fmt.Sprintf("[error: %s: %v]", what, err)
}

// renderCondition resolves a condition string against the variables: a
// string with template spans is rendered; a bare string is tried as a
// variable path first and falls back to its literal text.
func renderCondition(condition string, vars value.Map) string {
	if template.HasSpans(condition) {
		return template.Render(condition, vars)
	}
	if v, ok := value.Lookup(vars, condition); ok {
		return v.String()
	}
	return condition
}
