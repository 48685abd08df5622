package w3c

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageType distinguishes errors from warnings.
type MessageType string

const (
	TypeError   MessageType = "error"
	TypeWarning MessageType = "warning"
)

// Message is a single error or warning reported by a validator.
//
// Line and Col are zero when the validator did not report them, which is
// always the case for HEAD checks.
type Message struct {
	Type          MessageType `json:"type" yaml:"type"`
	URI           string      `json:"uri,omitempty" yaml:"uri,omitempty"`
	Line          int         `json:"line,omitempty" yaml:"line,omitempty"`
	Col           int         `json:"col,omitempty" yaml:"col,omitempty"`
	Message       string      `json:"message,omitempty" yaml:"message,omitempty"`
	MessageID     string      `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Explanation   string      `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Source        string      `json:"source,omitempty" yaml:"source,omitempty"`
	Level         string      `json:"level,omitempty" yaml:"level,omitempty"`
	Context       string      `json:"context,omitempty" yaml:"context,omitempty"`
	SkippedString string      `json:"skipped_string,omitempty" yaml:"skipped_string,omitempty"`
	ErrorType     string      `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	ErrorSubtype  string      `json:"error_subtype,omitempty" yaml:"error_subtype,omitempty"`
}

// newMessage builds a Message from the element names and texts found under
// an error or warning element. Unknown names are ignored.
func newMessage(typ MessageType, fields map[string]string) *Message {
	m := &Message{Type: typ}
	for name, text := range fields {
		switch name {
		case "uri":
			m.URI = text
		case "line":
			m.Line = atoi(text)
		case "col":
			m.Col = atoi(text)
		case "message":
			m.Message = text
		case "messageid":
			m.MessageID = text
		case "explanation":
			m.Explanation = text
		case "source":
			m.Source = text
		case "level":
			m.Level = text
		case "context":
			m.Context = text
		case "skippedstring":
			m.SkippedString = text
		case "errortype":
			m.ErrorType = text
		case "errorsubtype":
			m.ErrorSubtype = text
		}
	}
	return m
}

// IsError reports whether the message is an error.
func (m *Message) IsError() bool { return m.Type == TypeError }

// IsWarning reports whether the message is a warning.
func (m *Message) IsWarning() bool { return m.Type == TypeWarning }

// String returns a one-line summary, e.g.
// "ERROR; URI: http://example.com/; line 12: end tag for "p" omitted".
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(m.Type)))
	b.WriteString("; ")
	if m.URI != "" {
		fmt.Fprintf(&b, "URI: %s; ", m.URI)
	}
	if m.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", m.Line)
	}
	b.WriteString(m.Message)
	return strings.TrimSpace(b.String())
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
