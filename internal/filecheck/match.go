package filecheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Mismatch reports the directive that failed and where in the input the
// search happened
type Mismatch struct {
	Directive Directive
	InputLine int
	Reason    string
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("line %d: %s: %s %q (input line %d)",
		m.Directive.Line, m.Reason, m.Directive.Kind, m.Directive.Pattern, m.InputLine+1)
}

type pos struct {
	line, col int
}

func (p pos) before(q pos) bool {
	return p.line < q.line || p.line == q.line && p.col < q.col
}

type matcher struct {
	c     *Checker
	lines []string
	vars  map[string]string
	// end of the last positive match; line -1 before the first one
	cur pos
	// start of the region not directives are checked against
	notFrom pos
	nots    []Directive
}

// Check runs the directives against input
func (c *Checker) Check(input string) error {
	m := &matcher{
		c:     c,
		lines: strings.Split(strings.TrimSuffix(input, "\n"), "\n"),
		vars:  make(map[string]string),
		cur:   pos{line: -1},
	}
	ds := c.directives
	for k := 0; k < len(ds); k++ {
		d := ds[k]
		switch d.Kind {
		case Not:
			if len(m.nots) == 0 {
				m.notFrom = m.cur
			}
			m.nots = append(m.nots, d)
		case Unordered:
			j := k
			for j < len(ds) && ds[j].Kind == Unordered {
				j++
			}
			if err := m.unordered(ds[k:j]); err != nil {
				return err
			}
			k = j - 1
		default:
			if err := m.positive(d); err != nil {
				return err
			}
		}
	}
	return m.flushNots(pos{line: len(m.lines)})
}

func (m *matcher) positive(d Directive) error {
	re, names, err := m.compile(d)
	if err != nil {
		return err
	}
	var at, end pos
	found := false
	switch d.Kind {
	case Check:
		at, end, found = m.search(re, m.start())
	case Next:
		line := m.cur.line + 1
		if line < len(m.lines) {
			at, end, found = m.find(re, line, 0)
		}
		if !found {
			return &Mismatch{Directive: d, InputLine: min(line, len(m.lines)-1), Reason: "no match on next line"}
		}
	case Same:
		at, end, found = m.find(re, m.cur.line, m.cur.col)
		if !found {
			return &Mismatch{Directive: d, InputLine: m.cur.line, Reason: "no match on same line"}
		}
	}
	if !found {
		return &Mismatch{Directive: d, InputLine: max(m.start().line, 0), Reason: "no match"}
	}
	if err := m.flushNots(at); err != nil {
		return err
	}
	m.bind(re, names, at.line, at.col)
	m.cur = end
	return nil
}

// unordered matches a group in any order. Each directive takes the first
// line after the current position no other member of the group holds.
func (m *matcher) unordered(group []Directive) error {
	taken := make(map[int]bool)
	from := m.start()
	var first, last pos
	for k, d := range group {
		re, names, err := m.compile(d)
		if err != nil {
			return err
		}
		var at, end pos
		found := false
		for p := from; !found && p.line < len(m.lines); p = (pos{line: p.line + 1}) {
			if taken[p.line] {
				continue
			}
			at, end, found = m.find(re, p.line, p.col)
		}
		if !found {
			return &Mismatch{Directive: d, InputLine: max(from.line, 0), Reason: "no match"}
		}
		taken[at.line] = true
		m.bind(re, names, at.line, at.col)
		if k == 0 || at.before(first) {
			first = at
		}
		if k == 0 || last.before(end) {
			last = end
		}
	}
	if err := m.flushNots(first); err != nil {
		return err
	}
	m.cur = last
	return nil
}

// start is where a check directive begins searching
func (m *matcher) start() pos {
	if m.cur.line < 0 {
		return pos{}
	}
	return m.cur
}

func (m *matcher) search(re *regexp.Regexp, from pos) (pos, pos, bool) {
	for line := from.line; line < len(m.lines); line++ {
		col := 0
		if line == from.line {
			col = from.col
		}
		if at, end, ok := m.find(re, line, col); ok {
			return at, end, true
		}
	}
	return pos{}, pos{}, false
}

func (m *matcher) find(re *regexp.Regexp, line, col int) (pos, pos, bool) {
	if line < 0 || line >= len(m.lines) || col > len(m.lines[line]) {
		return pos{}, pos{}, false
	}
	loc := re.FindStringIndex(m.lines[line][col:])
	if loc == nil {
		return pos{}, pos{}, false
	}
	return pos{line, col + loc[0]}, pos{line, col + loc[1]}, true
}

// flushNots checks pending not directives against the text between the
// previous positive match and to
func (m *matcher) flushNots(to pos) error {
	nots := m.nots
	m.nots = nil
	from := m.notFrom
	if from.line < 0 {
		from = pos{}
	}
	for _, d := range nots {
		re, _, err := m.compile(d)
		if err != nil {
			return err
		}
		for line := from.line; line < len(m.lines) && line <= to.line; line++ {
			text := m.lines[line]
			if line == to.line {
				text = text[:min(to.col, len(text))]
			}
			col := 0
			if line == from.line {
				col = min(from.col, len(text))
			}
			if re.MatchString(text[col:]) {
				return &Mismatch{Directive: d, InputLine: line, Reason: "excluded pattern found"}
			}
		}
	}
	return nil
}

func (m *matcher) bind(re *regexp.Regexp, names []string, line, col int) {
	if len(names) == 0 {
		return
	}
	sub := re.FindStringSubmatch(m.lines[line][col:])
	for _, name := range names {
		m.vars[name] = sub[re.SubexpIndex(name)]
	}
}

// compile turns a pattern into a regexp using the current bindings. It
// returns the names the pattern captures.
func (m *matcher) compile(d Directive) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	var names []string
	s := d.Pattern
	fail := func(format string, args ...any) (*regexp.Regexp, []string, error) {
		return nil, nil, fmt.Errorf("line %d: %s", d.Line, fmt.Sprintf(format, args...))
	}
	for len(s) > 0 {
		switch {
		case strings.HasPrefix(s, "$("):
			end := closing(s)
			if end < 0 {
				return fail("unterminated $(")
			}
			body := s[2:end]
			s = s[end+1:]
			if name, re, ok := strings.Cut(body, "="); ok {
				if !validName(name) {
					return fail("bad capture name %q", name)
				}
				for _, n := range names {
					if n == name {
						return fail("%s captured twice", name)
					}
				}
				names = append(names, name)
				b.WriteString("(?P<" + name + ">" + re + ")")
				continue
			}
			if v, ok := m.vars[body]; ok {
				b.WriteString(regexp.QuoteMeta(v))
			} else if re, ok := m.c.regexes[body]; ok {
				b.WriteString("(?:" + re + ")")
			} else {
				return fail("undefined variable %q", body)
			}
		case s[0] == ' ' || s[0] == '\t':
			s = strings.TrimLeft(s, " \t")
			b.WriteString(`[ \t]+`)
		default:
			n := strings.IndexAny(s, " \t")
			if k := strings.Index(s, "$("); k >= 0 && (n < 0 || k < n) {
				n = k
			}
			if n < 0 {
				n = len(s)
			}
			b.WriteString(regexp.QuoteMeta(s[:n]))
			s = s[n:]
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return fail("%v", err)
	}
	return re, names, nil
}

// closing finds the parenthesis closing the "$(" at the start of s,
// counting nested groups inside the regex
func closing(s string) int {
	depth := 0
	for k := 1; k < len(s); k++ {
		switch s[k] {
		case '\\':
			k++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}
