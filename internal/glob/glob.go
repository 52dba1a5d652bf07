// Package glob matches session names against simple glob patterns.
// Patterns support '*' (any run of characters) and '?' (any single
// character). Session names never contain path separators, so there is
// no segment handling.
package glob

import (
	"fmt"
	"strings"
)

const (
	MaxLength    = 128
	MaxWildcards = 10
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenAny
	tokenStar
)

type token struct {
	kind tokenKind
	lit  rune
}

// Validate checks that a pattern is well-formed and within complexity
// limits.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if len(pattern) > MaxLength {
		return fmt.Errorf("pattern too long: %d exceeds limit of %d", len(pattern), MaxLength)
	}
	tokens := parse(pattern)
	wildcards := 0
	for _, t := range tokens {
		if t.kind != tokenLiteral {
			wildcards++
		}
	}
	if wildcards > MaxWildcards {
		return fmt.Errorf("pattern too complex: %d wildcards exceeds limit of %d", wildcards, MaxWildcards)
	}
	return nil
}

// Match reports whether name matches pattern.
func Match(pattern, name string) bool {
	tokens := parse(pattern)
	runes := []rune(name)

	// Iterative wildcard matching with star backtracking.
	ti, ri := 0, 0
	starTok, starRune := -1, 0
	for ri < len(runes) {
		if ti < len(tokens) {
			switch tokens[ti].kind {
			case tokenStar:
				starTok = ti
				starRune = ri
				ti++
				continue
			case tokenAny:
				ti++
				ri++
				continue
			case tokenLiteral:
				if tokens[ti].lit == runes[ri] {
					ti++
					ri++
					continue
				}
			}
		}
		if starTok >= 0 {
			starRune++
			ti = starTok + 1
			ri = starRune
			continue
		}
		return false
	}
	for ti < len(tokens) && tokens[ti].kind == tokenStar {
		ti++
	}
	return ti == len(tokens)
}

// Overlap reports whether two patterns can match the same session
// name. Used to warn about thread registrations that shadow each
// other.
func Overlap(a, b string) bool {
	ta := parse(a)
	tb := parse(b)

	type state struct{ i, j int }
	seen := make(map[state]struct{})
	stack := []state{{0, 0}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}

		if s.i == len(ta) && s.j == len(tb) {
			return true
		}
		// A star matches zero or more characters: branch on skipping it.
		if s.i < len(ta) && ta[s.i].kind == tokenStar {
			stack = append(stack, state{s.i + 1, s.j})
			if s.j < len(tb) {
				stack = append(stack, state{s.i, s.j + 1})
			}
			continue
		}
		if s.j < len(tb) && tb[s.j].kind == tokenStar {
			stack = append(stack, state{s.i, s.j + 1})
			if s.i < len(ta) {
				stack = append(stack, state{s.i + 1, s.j})
			}
			continue
		}
		if s.i == len(ta) || s.j == len(tb) {
			continue
		}
		if compatible(ta[s.i], tb[s.j]) {
			stack = append(stack, state{s.i + 1, s.j + 1})
		}
	}
	return false
}

func compatible(a, b token) bool {
	if a.kind == tokenLiteral && b.kind == tokenLiteral {
		return a.lit == b.lit
	}
	// At least one side is '?', which admits any character.
	return true
}

// IsPattern reports whether s contains wildcard characters at all.
// Literal session names skip glob evaluation entirely.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?")
}

func parse(pattern string) []token {
	runes := []rune(pattern)
	tokens := make([]token, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			// Collapse adjacent stars.
			if len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenStar {
				continue
			}
			tokens = append(tokens, token{kind: tokenStar})
		case '?':
			tokens = append(tokens, token{kind: tokenAny})
		case '\\':
			if i+1 < len(runes) {
				i++
			}
			tokens = append(tokens, token{kind: tokenLiteral, lit: runes[i]})
		default:
			tokens = append(tokens, token{kind: tokenLiteral, lit: runes[i]})
		}
	}
	return tokens
}
