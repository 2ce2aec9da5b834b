// Package filecheck matches compiler output against a list of line
// directives. Golden tests use it to pin down the parts of printed IR or
// assembly that matter without spelling out the whole text.
//
// Directives, one per line:
//
//	check: PATTERN      PATTERN occurs at or after the previous match
//	nextln: PATTERN     PATTERN occurs on the line after the previous match
//	sameln: PATTERN     PATTERN occurs later on the line of the previous match
//	not: PATTERN        PATTERN does not occur before the next positive match
//	unordered: PATTERN  consecutive unordered directives match in any order
//	regex: NAME=RE      defines a named regular expression
//
// Patterns are literal text. $(NAME=RE) captures the text matched by RE,
// and $(NAME) matches a captured value or a regex defined with regex:.
// Runs of blanks match any non-empty run of blanks.
package filecheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the kind of a directive
type Kind int

const (
	Check Kind = iota
	Next
	Same
	Not
	Unordered
)

var kindNames = map[string]Kind{
	"check":     Check,
	"nextln":    Next,
	"sameln":    Same,
	"not":       Not,
	"unordered": Unordered,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "?"
}

// Directive is one parsed directive line
type Directive struct {
	Kind    Kind
	Pattern string
	Line    int
}

// Checker holds parsed directives
type Checker struct {
	directives []Directive
	regexes    map[string]string
}

// Parse reads directives. Blank lines are skipped.
func Parse(text string) (*Checker, error) {
	c := &Checker{regexes: make(map[string]string)}
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, pattern, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected a directive, got %q", n+1, line)
		}
		pattern = strings.TrimSpace(pattern)
		if name == "regex" {
			v, re, ok := strings.Cut(pattern, "=")
			if !ok || !validName(v) {
				return nil, fmt.Errorf("line %d: expected regex: NAME=RE", n+1)
			}
			if _, err := regexp.Compile(re); err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			c.regexes[v] = re
			continue
		}
		kind, ok := kindNames[name]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown directive %q", n+1, name)
		}
		if pattern == "" {
			return nil, fmt.Errorf("line %d: %s needs a pattern", n+1, name)
		}
		c.directives = append(c.directives, Directive{Kind: kind, Pattern: pattern, Line: n + 1})
	}
	if len(c.directives) == 0 {
		return nil, fmt.Errorf("no directives")
	}
	if first := c.directives[0].Kind; first == Next || first == Same {
		return nil, fmt.Errorf("line %d: %s cannot be the first directive", c.directives[0].Line, first)
	}
	return c, nil
}

// Directives returns the parsed directives in order
func (c *Checker) Directives() []Directive { return c.directives }

func validName(s string) bool {
	if s == "" {
		return false
	}
	for k, r := range s {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(k > 0 && r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Match parses directives and checks input against them
func Match(directives, input string) error {
	c, err := Parse(directives)
	if err != nil {
		return err
	}
	return c.Check(input)
}
