// Copyright Contributors to the KubeTask project

// Package template evaluates bracketed expressions embedded in template
// text and renders whole template documents. Both operate on raw text
// rather than a parsed tree: a number/bool/object-typed expression must be
// able to replace its surrounding JSON quotes atomically, which only works
// if expansion happens before the text is handed to a JSON parser.
package template

import (
	"encoding/json"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/scanner"
)

// Render walks raw template text, expanding every embedded "[...]"
// expression inside every JSON string literal, then parses the rewritten
// text as JSON.
func Render(rawText string, ctx *Context) (any, error) {
	rewritten, err := renderText(rawText, ctx)
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal([]byte(rewritten), &result); err != nil {
		return nil, jexerr.Wrap(jexerr.Parse, err, "rendered template text is not valid JSON")
	}
	return result, nil
}

// renderText performs the text-level rewrite without parsing the result
// as JSON; Render parses its output.
func renderText(s string, ctx *Context) (string, error) {
	var out []byte
	i := 0
	for i < len(s) {
		if s[i] != '"' {
			out = append(out, s[i])
			i++
			continue
		}
		closeIdx, err := scanner.Find(s, i+1, '"')
		if err != nil {
			// Malformed/unterminated string literal: leave the tail
			// unmodified. Downstream json.Unmarshal will surface the
			// real error.
			out = append(out, s[i:]...)
			i = len(s)
			break
		}
		content := s[i+1 : closeIdx]
		rendered, wholeValue, err := renderStringLiteral(content, ctx)
		if err != nil {
			return "", err
		}
		if wholeValue {
			out = append(out, rendered...)
		} else {
			out = append(out, '"')
			out = append(out, rendered...)
			out = append(out, '"')
		}
		i = closeIdx + 1
	}
	return string(out), nil
}

// renderStringLiteral expands every "[...]" expression found in content (the
// text between a JSON string literal's quotes, not including the quotes
// themselves). If content is exactly one bracket expression with nothing
// else around it ("the expression replaces an entire JSON string value"),
// and the evaluated result is bool/int/object, the result is returned with
// wholeValue=true so the caller splices it in place of the surrounding
// quotes instead of inside them.
func renderStringLiteral(content string, ctx *Context) (string, bool, error) {
	if whole, ok := wholeBracketExpr(content); ok {
		val, err := Evaluate(whole, ctx)
		if err != nil {
			return "", false, err
		}
		switch v := val.(type) {
		case bool, int64:
			return StringifyValue(v), true, nil
		case float64:
			return StringifyValue(v), true, nil
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return "", false, jexerr.Wrap(jexerr.Parse, err, "failed to serialize spliced object")
			}
			return string(b), true, nil
		default:
			return jsonStringEscape(StringifyValue(val)), false, nil
		}
	}

	var out []byte
	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '\\' && i+1 < len(content):
			out = append(out, content[i], content[i+1])
			i += 2
		case c == '[':
			if i+1 < len(content) && content[i+1] == '[' {
				out = append(out, '[')
				i += 2
				continue
			}
			closeIdx := scanner.FindNested(content, i+1, ']')
			if closeIdx >= len(content) {
				out = append(out, content[i:]...)
				i = len(content)
				continue
			}
			val, err := Evaluate(content[i+1:closeIdx], ctx)
			if err != nil {
				return "", false, err
			}
			out = append(out, jsonStringEscape(StringifyValue(val))...)
			i = closeIdx + 1
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out), false, nil
}

// wholeBracketExpr reports whether content is exactly one "[...]"
// expression with no other characters around it.
func wholeBracketExpr(content string) (string, bool) {
	if len(content) < 2 || content[0] != '[' {
		return "", false
	}
	if len(content) > 1 && content[1] == '[' {
		return "", false
	}
	closeIdx := scanner.FindNested(content, 1, ']')
	if closeIdx != len(content)-1 {
		return "", false
	}
	return content[1:closeIdx], true
}

// jsonStringEscape escapes s for embedding inside a JSON string literal,
// stripping the surrounding quotes json.Marshal adds for a plain string.
func jsonStringEscape(s string) string {
	b, _ := json.Marshal(s)
	if len(b) >= 2 {
		return string(b[1 : len(b)-1])
	}
	return s
}
