package errors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"contractc/internal/ast"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// CompilerError is a diagnostic tied to a source position
type CompilerError struct {
	Level       ErrorLevel
	Code        string // E04xx, see codes.go
	Message     string
	Position    ast.Position
	Length      int // columns underlined, at least one
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

// Suggestion is a fix offered under a diagnostic
type Suggestion struct {
	Message     string
	Replacement string // rendered below the message when set
}

// Error renders the diagnostic without source context
func (e CompilerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s (%s)", e.Level, e.Code, e.Message, e.Position)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Level, e.Message, e.Position)
}

// Diagnostics is a list of compiler errors returned as a single error
type Diagnostics []CompilerError

func (d Diagnostics) Error() string {
	parts := make([]string, len(d))
	for i, e := range d {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

// HasErrors reports whether any diagnostic is an error
func (d Diagnostics) HasErrors() bool {
	for _, e := range d {
		if e.Level == Error {
			return true
		}
	}
	return false
}

// ErrorReporter renders diagnostics against the source they refer to
type ErrorReporter struct {
	filename string
	lines    []string
}

// NewErrorReporter creates a reporter for one source file
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{filename: filename, lines: strings.Split(source, "\n")}
}

var (
	dim    = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	levels = map[ErrorLevel]func(...any) string{
		Error:   color.New(color.FgRed, color.Bold).SprintFunc(),
		Warning: color.New(color.FgYellow, color.Bold).SprintFunc(),
		Note:    color.New(color.FgBlue, color.Bold).SprintFunc(),
		Help:    color.New(color.FgGreen, color.Bold).SprintFunc(),
	}
)

func levelStyle(level ErrorLevel) func(...any) string {
	if style, ok := levels[level]; ok {
		return style
	}
	return levels[Error]
}

// line returns source line n, 1-based
func (er *ErrorReporter) line(n int) (string, bool) {
	if n < 1 || n > len(er.lines) {
		return "", false
	}
	return er.lines[n-1], true
}

// FormatInternal renders an internal compiler error. It names the function
// and instruction and shows the source line when a position is known.
func (er *ErrorReporter) FormatInternal(err *InternalError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", levelStyle(Error)("internal compiler error"), err.Message)
	if err.Function != "" {
		fmt.Fprintf(&b, "    %s function %s\n", dim("-->"), err.Function)
	}
	if err.Instruction != "" {
		fmt.Fprintf(&b, "    %s instruction %s\n", dim("-->"), err.Instruction)
	}
	if pos := err.Position; pos.IsValid() {
		if pos.Filename == "" {
			pos.Filename = er.filename
		}
		fmt.Fprintf(&b, "    %s %s\n", dim("-->"), pos)
		if text, ok := er.line(pos.Line); ok {
			fmt.Fprintf(&b, "    %s %s\n", dim("│"), text)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// FormatError renders err with the offending line between its neighbours,
// a caret marker under the span, then suggestions, notes and help
func (er *ErrorReporter) FormatError(err CompilerError) string {
	var b strings.Builder
	style := levelStyle(err.Level)
	pos := err.Position

	header := style(string(err.Level))
	if err.Code != "" {
		header = fmt.Sprintf("%s[%s]", header, err.Code)
	}
	fmt.Fprintf(&b, "%s: %s\n", header, err.Message)

	width := max(3, len(strconv.Itoa(pos.Line)))
	gutter := strings.Repeat(" ", width)
	bar := dim("│")
	fmt.Fprintf(&b, "%s %s %s:%d:%d\n", gutter, dim("-->"), er.filename, pos.Line, pos.Column)
	fmt.Fprintf(&b, "%s %s\n", gutter, bar)

	for n := pos.Line - 1; n <= pos.Line+1; n++ {
		text, ok := er.line(n)
		if !ok {
			continue
		}
		number := fmt.Sprintf("%*d", width, n)
		if n != pos.Line {
			fmt.Fprintf(&b, "%s %s %s\n", dim(number), bar, text)
			continue
		}
		marker := strings.Repeat(" ", max(0, pos.Column-1)) + style(strings.Repeat("^", max(1, err.Length)))
		fmt.Fprintf(&b, "%s %s %s\n", bold(number), bar, text)
		fmt.Fprintf(&b, "%s %s %s\n", gutter, bar, marker)
	}

	if len(err.Suggestions) > 0 {
		fmt.Fprintf(&b, "%s %s\n", gutter, bar)
	}
	for i, s := range err.Suggestions {
		if i == 0 {
			fmt.Fprintf(&b, "%s %s %s: %s\n", gutter, cyan("help"), cyan("try"), s.Message)
		} else {
			fmt.Fprintf(&b, "%s %s %s\n", gutter, strings.Repeat(" ", 4), s.Message)
		}
		if s.Replacement != "" {
			fmt.Fprintf(&b, "%s %s\n", gutter, bar)
			for _, text := range strings.Split(s.Replacement, "\n") {
				fmt.Fprintf(&b, "%s %s %s\n", gutter, cyan("│"), cyan(text))
			}
		}
	}
	for _, note := range err.Notes {
		fmt.Fprintf(&b, "%s %s %s %s\n", gutter, bar, blue("note:"), note)
	}
	if err.HelpText != "" {
		fmt.Fprintf(&b, "%s %s %s %s\n", gutter, bar, green("help:"), err.HelpText)
	}
	b.WriteString("\n")
	return b.String()
}
