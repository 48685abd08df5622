package w3c

// Results holds the outcome of one validation call.
type Results struct {
	URI       string `json:"uri,omitempty" yaml:"uri,omitempty"`
	CheckedBy string `json:"checked_by,omitempty" yaml:"checked_by,omitempty"`
	Doctype   string `json:"doctype,omitempty" yaml:"doctype,omitempty"`
	Charset   string `json:"charset,omitempty" yaml:"charset,omitempty"`
	CSSLevel  string `json:"css_level,omitempty" yaml:"css_level,omitempty"`
	Validity  bool   `json:"validity" yaml:"validity"`

	Errors        []*Message        `json:"errors" yaml:"errors"`
	Warnings      []*Message        `json:"warnings" yaml:"warnings"`
	DebugMessages map[string]string `json:"debug_messages,omitempty" yaml:"debug_messages,omitempty"`
}

func newResults() *Results {
	return &Results{DebugMessages: make(map[string]string)}
}

// AddMessage appends m to the error or warning list according to its type.
func (r *Results) AddMessage(m *Message) {
	switch m.Type {
	case TypeWarning:
		r.Warnings = append(r.Warnings, m)
	default:
		m.Type = TypeError
		r.Errors = append(r.Errors, m)
	}
}

// AddError appends an error with the given text. HEAD checks use it with an
// empty string to record a count without detail.
func (r *Results) AddError(text string) {
	r.AddMessage(&Message{Type: TypeError, URI: r.URI, Message: text})
}

// AddWarning appends a warning with the given text.
func (r *Results) AddWarning(text string) {
	r.AddMessage(&Message{Type: TypeWarning, URI: r.URI, Message: text})
}

// AddDebugMessage records a named debug value. Later values replace earlier
// ones with the same name.
func (r *Results) AddDebugMessage(name, value string) {
	if r.DebugMessages == nil {
		r.DebugMessages = make(map[string]string)
	}
	r.DebugMessages[name] = value
}

// IsValid reports the validator's verdict. A result that carries errors is
// never valid, whatever the validity field said.
func (r *Results) IsValid() bool {
	return r.Validity && len(r.Errors) == 0
}

// Messages returns errors followed by warnings.
func (r *Results) Messages() []*Message {
	out := make([]*Message, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}
