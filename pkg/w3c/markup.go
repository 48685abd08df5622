package w3c

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
)

// MarkupValidator validates HTML and XHTML through the W3C Markup
// Validation Service.
//
// Request parameters can be given up front with WithParam or adjusted later
// with SetCharset, SetDoctype and SetDebug. None of them apply to
// ValidateURIQuickly, which only reads the validator's summary headers.
type MarkupValidator struct {
	*client
}

// NewMarkupValidator returns a client for the public markup validator
// unless WithValidatorURI says otherwise.
func NewMarkupValidator(opts ...Option) *MarkupValidator {
	return &MarkupValidator{client: newClient(MarkupValidatorURI, opts)}
}

// SetCharset sets the character encoding used to parse the document. With
// onlyAsFallback the encoding is only used when the document does not
// declare a recognisable one.
func (v *MarkupValidator) SetCharset(charset string, onlyAsFallback bool) {
	v.params.Set("charset", charset)
	v.params.Set("fbc", strconvBool(onlyAsFallback))
}

// SetCharsetKey is SetCharset with a key from Charsets, e.g. "utf_8".
func (v *MarkupValidator) SetCharsetKey(key string, onlyAsFallback bool) error {
	charset, ok := Charsets[key]
	if !ok {
		return unknownKey("charset", key, Charsets)
	}
	v.SetCharset(charset, onlyAsFallback)
	return nil
}

// SetDoctype sets the document type used to parse the document. With
// onlyAsFallback it is only used when the DOCTYPE declaration is missing or
// unrecognised.
func (v *MarkupValidator) SetDoctype(doctype string, onlyAsFallback bool) {
	v.params.Set("doctype", doctype)
	v.params.Set("fbd", strconvBool(onlyAsFallback))
}

// SetDoctypeKey is SetDoctype with a key from Doctypes, e.g. "html32".
func (v *MarkupValidator) SetDoctypeKey(key string, onlyAsFallback bool) error {
	doctype, ok := Doctypes[key]
	if !ok {
		return unknownKey("doctype", key, Doctypes)
	}
	v.SetDoctype(doctype, onlyAsFallback)
	return nil
}

// SetDebug asks the validator for extra information about the validated
// resource and the parse. It lands in Results.DebugMessages.
func (v *MarkupValidator) SetDebug(debug bool) {
	v.params.Set("debug", strconvBool(debug))
}

// ValidateURI validates the markup at uri.
func (v *MarkupValidator) ValidateURI(ctx context.Context, uri string) (*Results, error) {
	return v.validate(ctx, url.Values{"uri": {uri}}, nil, false)
}

// ValidateURIQuickly validates the markup at uri with a HEAD request. The
// results carry validity and an error count, not the error messages.
func (v *MarkupValidator) ValidateURIQuickly(ctx context.Context, uri string) (*Results, error) {
	return v.validate(ctx, url.Values{"uri": {uri}}, nil, true)
}

// ValidateText validates a block of markup.
func (v *MarkupValidator) ValidateText(ctx context.Context, text string) (*Results, error) {
	return v.validate(ctx, url.Values{"fragment": {text}}, nil, false)
}

// ValidateFile uploads and validates a local file.
func (v *MarkupValidator) ValidateFile(ctx context.Context, path string) (*Results, error) {
	data, err := readLocalFile(path)
	if err != nil {
		return nil, err
	}
	return v.validateUpload(ctx, filepath.Base(path), data)
}

// ValidateReader uploads and validates everything read from r. name is the
// file name reported to the validator.
func (v *MarkupValidator) ValidateReader(ctx context.Context, r io.Reader, name string) (*Results, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return v.validateUpload(ctx, name, data)
}

func (v *MarkupValidator) validateUpload(ctx context.Context, name string, data []byte) (*Results, error) {
	if len(data) == 0 {
		return nil, ErrMissingContent
	}
	if name == "" {
		name = "upload.html"
	}
	return v.validate(ctx, url.Values{"uploaded_file": {name}}, &upload{name: name, data: data}, false)
}

func (v *MarkupValidator) validate(ctx context.Context, content url.Values, up *upload, quick bool) (*Results, error) {
	params, err := v.requestParams(content, "uri", "uploaded_file", "fragment")
	if err != nil {
		return nil, err
	}

	if quick {
		resp, _, err := v.send(ctx, http.MethodHead, params, nil)
		if err != nil {
			return nil, err
		}
		if err := v.checkStatus(resp); err != nil {
			return nil, err
		}
		results, err := parseHeadResponse(resp.Header, params.Get("uri"))
		return results, v.handleError(err)
	}

	method := http.MethodPost
	if params.Get("uri") != "" {
		method = http.MethodGet
	}
	resp, body, err := v.send(ctx, method, params, up)
	if err != nil {
		return nil, err
	}
	if err := v.checkStatus(resp); err != nil {
		return nil, err
	}

	results, err := parseMarkupResponse(body)
	if err != nil {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s answered %s", ErrValidatorUnavailable, v.uri, resp.Status)
		}
		return nil, v.handleError(err)
	}
	return results, nil
}

func strconvBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
