package errors

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol  Category = "protocol"
	CategoryEncoding  Category = "encoding"
	CategoryHandshake Category = "handshake"
	CategoryHeartbeat Category = "heartbeat"
	CategoryTransport Category = "transport"
	CategoryReconnect Category = "reconnect"
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
)

// Location is a position in a file the user wrote, usually pomelo.json.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns "file:line:column", or "file:line" when the column is
// unknown.
func (l *Location) String() string {
	switch {
	case l == nil:
		return ""
	case l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	default:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
}

// contextSize is the number of source lines shown around a Location.
const contextSize = 5

// Error is a coded error carrying what the CLI needs to explain a failure:
// the registered message, where in the config file it happened and how to
// fix it. Build one with New and the With methods.
type Error struct {
	Code     string // "E050"; empty for ad hoc errors from Newf
	Category Category
	Message  string
	Detail   string

	Location *Location
	Context  []string // lines around Location.Line

	Suggestion string
	Example    string
	DocURL     string

	Wrapped error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Wrapped }

// WithLocation points the error at file:line:column and loads the
// surrounding lines from disk. A missing file leaves Context empty.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, contextSize)
	return e
}

// WithOffset is WithLocation for a byte offset into data, the form
// encoding/json reports decode errors in. Offsets outside data are ignored.
func (e *Error) WithOffset(file string, data []byte, offset int64) *Error {
	if offset < 0 || offset > int64(len(data)) {
		return e
	}
	before := data[:offset]
	line := bytes.Count(before, []byte("\n")) + 1
	column := int(offset) - bytes.LastIndexByte(before, '\n')
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = contextLines(bufio.NewScanner(bytes.NewReader(data)), line, contextSize)
	return e
}

func (e *Error) WithSuggestion(s string) *Error { e.Suggestion = s; return e }

func (e *Error) WithExample(ex string) *Error { e.Example = ex; return e }

func (e *Error) WithDetail(d string) *Error { e.Detail = d; return e }

func (e *Error) WithContext(lines []string) *Error { e.Context = lines; return e }

// Wrap records err as the cause.
func (e *Error) Wrap(err error) *Error { e.Wrapped = err; return e }

func readContextLines(filename string, line, n int) []string {
	f, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer f.Close()
	return contextLines(bufio.NewScanner(f), line, n)
}

// contextLines returns up to n lines centred on line.
func contextLines(sc *bufio.Scanner, line, n int) []string {
	lo, hi := line-n/2, line+n/2
	var out []string
	for i := 1; i <= hi && sc.Scan(); i++ {
		if i >= lo {
			out = append(out, sc.Text())
		}
	}
	return out
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return New(code).Wrap(err)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			return pe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
