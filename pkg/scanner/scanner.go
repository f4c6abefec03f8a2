// Copyright Contributors to the KubeTask project

// Package scanner provides the lexical primitives the expression
// evaluator and template renderer use to scan raw JSON text
// without parsing it structurally: finding a matching delimiter while
// respecting backslash-escapes, and finding a delimiter at the outer
// nesting level while skipping over balanced brackets and quoted strings.
package scanner

import "github.com/kubetask/jobexpander/pkg/jexerr"

// Find scans s starting at index from, treating '\\' as an escape of the
// following character, and returns the index of the next unescaped
// occurrence of delim. It fails if delim is never found.
func Find(s string, from int, delim byte) (int, error) {
	for i := from; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == delim {
			return i, nil
		}
	}
	return -1, jexerr.New(jexerr.Parse, "no unescaped %q found starting at index %d", string(delim), from)
}

// matching returns the closing bracket for an opening bracket byte.
func matching(open byte) byte {
	switch open {
	case '[':
		return ']'
	case '(':
		return ')'
	default:
		return 0
	}
}

// FindNested scans s starting at index from, descending into balanced
// '[...]'/'(...)' pairs and skipping over '"...' / '\'...\'' quoted strings,
// and returns the index of delim at the outer nesting level. If delim is
// never found at the outer level, it returns len(s) (not an error): callers
// use this to detect "ran off the end" the same way the original algorithm
// does, rather than failing eagerly.
func FindNested(s string, from int, delim byte) int {
	i := from
	for i < len(s) {
		c := s[i]
		switch {
		case c == delim:
			return i
		case c == '[' || c == '(':
			close := matching(c)
			end := FindNested(s, i+1, close)
			if end >= len(s) {
				return len(s)
			}
			i = end + 1
		case c == '"' || c == '\'':
			end, err := Find(s, i+1, c)
			if err != nil {
				return len(s)
			}
			i = end + 1
		default:
			i++
		}
	}
	return len(s)
}

// SplitTopLevel splits s (the text between, but not including, an
// already-matched outer bracket pair) at top-level commas, using FindNested
// so that commas inside nested brackets or quoted strings are not treated as
// separators. Used by the expression evaluator to split concat(...) arguments.
func SplitTopLevel(s string) []string {
	var parts []string
	start := 0
	for start <= len(s) {
		end := FindNested(s, start, ',')
		parts = append(parts, s[start:end])
		if end >= len(s) {
			break
		}
		start = end + 1
	}
	return parts
}
