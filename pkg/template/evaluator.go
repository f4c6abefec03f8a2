// Copyright Contributors to the KubeTask project

package template

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/scanner"
)

var (
	parametersPattern = regexp.MustCompile(`^parameters\('([^']*)'\)$`)
	variablesPattern  = regexp.MustCompile(`^variables\('([^']*)'\)$`)
)

// Evaluate resolves one expression. text is the content between a matching
// bracket pair, or a full "[...]"-wrapped expression (as stored verbatim
// for a variable); both shapes are handled by the initial unwrap loop.
func Evaluate(text string, ctx *Context) (any, error) {
	trimmed := strings.TrimSpace(text)

	for len(trimmed) >= 2 {
		if trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
			trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			continue
		}
		if trimmed[0] == '(' && trimmed[len(trimmed)-1] == ')' {
			trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			continue
		}
		break
	}

	if len(trimmed) >= 2 && trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'' {
		return trimmed[1 : len(trimmed)-1], nil
	}

	if m := parametersPattern.FindStringSubmatch(trimmed); m != nil {
		return ctx.resolveParameter(m[1])
	}

	if m := variablesPattern.FindStringSubmatch(trimmed); m != nil {
		return ctx.resolveVariable(m[1])
	}

	if strings.HasPrefix(trimmed, "concat(") && strings.HasSuffix(trimmed, ")") {
		inner := trimmed[len("concat(") : len(trimmed)-1]
		args := scanner.SplitTopLevel(inner)
		var sb strings.Builder
		for _, a := range args {
			v, err := Evaluate(strings.TrimSpace(a), ctx)
			if err != nil {
				return nil, err
			}
			sb.WriteString(StringifyValue(v))
		}
		return sb.String(), nil
	}

	if strings.HasPrefix(trimmed, "reference") {
		return nil, jexerr.New(jexerr.Unsupported, "reference(...) expressions are not supported: %q", trimmed)
	}

	return trimmed, nil
}

// StringifyValue coerces an evaluated value to its string form, used by
// concat() and by non-whole-value string splicing.
func StringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatNumber(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
