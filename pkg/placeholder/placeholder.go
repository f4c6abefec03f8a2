// Copyright Contributors to the KubeTask project

// Package placeholder substitutes {n}/{n:m} sweep placeholders and
// {url}/{filePath}/{fileName}/{fileNameWithoutExtension} file
// placeholders, with brace-escape semantics shared by both.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
)

// leftBraceSentinel and rightBraceSentinel stand in for "{{" and "}}"
// while a substitution function runs, so its placeholder regex can't
// mistake an escaped brace for one. escapeBraces is a single
// left-to-right scan that pairs braces greedily; the sentinel is just
// its intermediate token.
const (
	leftBraceSentinel  = ''
	rightBraceSentinel = ''
)

var placeholderPattern = regexp.MustCompile(`\{(\d+)(?::(\d+))?\}`)

// FileRef carries the fields surfaced to a taskPerFile substitution.
type FileRef struct {
	URL                      string
	FilePath                 string
	FileName                 string
	FileNameWithoutExtension string
}

// Func is a substitution function: sweep or file.
type Func func(string) (string, error)

// Substitute runs the brace-escape/restore wrapper around fn: escape
// doubled braces, run fn, fail if any single brace survives, then restore
// the escaped ones to literal braces.
func Substitute(s string, fn Func) (string, error) {
	escaped := escapeBraces(s)
	substituted, err := fn(escaped)
	if err != nil {
		return "", err
	}
	for _, r := range substituted {
		if r == '{' || r == '}' {
			return "", jexerr.New(jexerr.OutOfRange, "unescaped brace in %q", s)
		}
	}
	return unescapeSentinels(substituted), nil
}

func escapeBraces(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	i := 0
	for i < len(runes) {
		switch {
		case runes[i] == '{' && i+1 < len(runes) && runes[i+1] == '{':
			out = append(out, leftBraceSentinel)
			i += 2
		case runes[i] == '}' && i+1 < len(runes) && runes[i+1] == '}':
			out = append(out, rightBraceSentinel)
			i += 2
		default:
			out = append(out, runes[i])
			i++
		}
	}
	return string(out)
}

func unescapeSentinels(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch r {
		case leftBraceSentinel:
			out = append(out, '{')
		case rightBraceSentinel:
			out = append(out, '}')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// Sweep returns the substitution function for one sweep iteration's
// parameter tuple: "{n}" → decimal string, "{n:m}" → m-digit zero-padded
// decimal (m in 1..9, negative values rejected).
func Sweep(params []int64) Func {
	return func(s string) (string, error) {
		var substErr error
		result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
			if substErr != nil {
				return match
			}
			sub := placeholderPattern.FindStringSubmatch(match)
			n, _ := strconv.Atoi(sub[1])
			if n < 0 || n >= len(params) {
				substErr = jexerr.New(jexerr.OutOfRange, "placeholder {%d} is out of range for %d sweep parameters", n, len(params))
				return match
			}
			value := params[n]
			if sub[2] == "" {
				return strconv.FormatInt(value, 10)
			}
			width, _ := strconv.Atoi(sub[2])
			if width < 1 || width > 9 {
				substErr = jexerr.New(jexerr.OutOfRange, "placeholder {%d:%d} width must be between 1 and 9", n, width)
				return match
			}
			if value < 0 {
				substErr = jexerr.New(jexerr.OutOfRange, "placeholder {%d:%d} cannot zero-pad negative value %d", n, width, value)
				return match
			}
			return fmt.Sprintf("%0*d", width, value)
		})
		if substErr != nil {
			return "", substErr
		}
		return result, nil
	}
}

// File returns the substitution function for one taskPerFile iteration.
func File(ref FileRef) Func {
	replacer := strings.NewReplacer(
		"{url}", ref.URL,
		"{filePath}", ref.FilePath,
		"{fileName}", ref.FileName,
		"{fileNameWithoutExtension}", ref.FileNameWithoutExtension,
	)
	return func(s string) (string, error) {
		return replacer.Replace(s), nil
	}
}
