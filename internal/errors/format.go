package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

// detailWidth is the column at which Detail text is wrapped.
const detailWidth = 70

var colorEnabled = true

// DisableColors turns off ANSI escapes in Format and Fprint output.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI escapes back on.
func EnableColors() { colorEnabled = true }

func paint(code, s string) string {
	if !colorEnabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

func red(s string) string  { return paint(ansiRed, s) }
func cyan(s string) string { return paint(ansiCyan, s) }
func gray(s string) string { return paint(ansiGray, s) }
func bold(s string) string { return paint(ansiBold, s) }

// Format renders the error as a multi-line block for a terminal:
//
//	ERROR E082 [config]: Invalid port number
//
//	  pomelo.json:3:11
//	  ...
func (e *Error) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(e.header())
	b.WriteString("\n\n")

	e.writeSource(&b)

	if lines := wrapText(e.Detail, detailWidth); len(lines) > 0 {
		for _, l := range lines {
			fmt.Fprintf(&b, "  %s\n", l)
		}
		b.WriteString("\n")
	}
	for _, cause := range causes(e.Wrapped) {
		fmt.Fprintf(&b, "  %s%s\n", gray("Cause: "), cause)
	}
	if e.Wrapped != nil {
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", cyan("Hint: "), e.Suggestion)
	}
	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", cyan("Example:"))
		for _, l := range strings.Split(e.Example, "\n") {
			fmt.Fprintf(&b, "    %s\n", l)
		}
		b.WriteString("\n")
	}
	if e.DocURL != "" {
		fmt.Fprintf(&b, "  %s%s\n", gray("Learn more: "), e.DocURL)
	}
	return b.String()
}

func (e *Error) header() string {
	label := "ERROR"
	if e.Code != "" {
		label += " " + e.Code
	}
	if e.Category != "" {
		label += " [" + string(e.Category) + "]"
	}
	return red(bold(label+":")) + " " + e.Message
}

// writeSource prints the location and, when available, the surrounding
// lines with the offending one marked.
func (e *Error) writeSource(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", cyan(e.Location.String()))
	if len(e.Context) == 0 {
		return
	}

	first := max(1, e.Location.Line-contextSize/2)
	bar := gray(" │ ")
	for i, text := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, bar, text)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", red("→ "), n, bar, text)
		if e.Location.Column > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", gray("│ "), strings.Repeat(" ", e.Location.Column-1), red("^"))
		}
	}
	b.WriteString("\n")
}

// causes flattens a wrap chain into one line per level. A level whose
// message already contains the next one is printed without the repeat.
func causes(err error) []string {
	var out []string
	for err != nil {
		msg := err.Error()
		next := unwrapOnce(err)
		if next != nil {
			msg = strings.TrimSuffix(msg, ": "+next.Error())
		}
		out = append(out, msg)
		err = next
	}
	return out
}

func unwrapOnce(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// FormatCompact returns "file:line:col: CODE: message", dropping the parts
// that are not set.
func (e *Error) FormatCompact() string {
	parts := make([]string, 0, 3)
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, ": ")
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// FormatJSON returns the error as a single JSON object.
func (e *Error) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if l := e.Location; l != nil {
		out.Location = &jsonLocation{File: l.File, Line: l.Line, Column: l.Column}
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Message)
	}
	return string(data)
}

// wrapText splits text into lines of at most width bytes on word
// boundaries. A single word longer than width gets its own line.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := []string{words[0]}
	for _, w := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(w) > width {
			lines = append(lines, w)
			continue
		}
		*last += " " + w
	}
	return lines
}

// Fprint writes err to w. An *Error is rendered with Format; anything else
// gets a one-line header.
func Fprint(w io.Writer, err error) {
	if err == nil {
		return
	}
	if pe, ok := err.(*Error); ok {
		fmt.Fprint(w, pe.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", red(bold("ERROR:")), err.Error())
}

// PrintError writes err to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
