package w3c

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// CSSValidator validates style sheets through the W3C CSS Validation
// Service. All requests are GETs; file and reader input is sent as text.
type CSSValidator struct {
	*client
}

// NewCSSValidator returns a client for the public CSS validator unless
// WithValidatorURI says otherwise.
func NewCSSValidator(opts ...Option) *CSSValidator {
	return &CSSValidator{client: newClient(CSSValidatorURI, opts)}
}

// SetProfile sets the CSS profile to validate against, e.g. "css3".
func (v *CSSValidator) SetProfile(profile string) {
	v.params.Set("profile", profile)
}

// SetProfileKey is SetProfile restricted to the keys of CSSProfiles.
func (v *CSSValidator) SetProfileKey(key string) error {
	if _, ok := CSSProfiles[key]; !ok {
		return unknownKey("css profile", key, CSSProfiles)
	}
	v.SetProfile(key)
	return nil
}

// SetWarnLevel sets how chatty the validator is about warnings: "no" for
// none, "0" for fewer, "1" or "2" for more.
func (v *CSSValidator) SetWarnLevel(level string) error {
	switch strings.ToLower(level) {
	case "0", "1", "2", "no":
		v.params.Set("warning", strings.ToLower(level))
		return nil
	}
	return fmt.Errorf("%w: warning level %q", ErrUnknownOption, level)
}

// SetLanguage sets the language of the validator's messages.
func (v *CSSValidator) SetLanguage(lang string) {
	if lang == "" {
		lang = "en"
	}
	v.params.Set("lang", lang)
}

// ValidateURI validates the style sheet (or the styles of the page) at uri.
func (v *CSSValidator) ValidateURI(ctx context.Context, uri string) (*Results, error) {
	return v.validate(ctx, url.Values{"uri": {uri}})
}

// ValidateText validates a block of CSS.
func (v *CSSValidator) ValidateText(ctx context.Context, text string) (*Results, error) {
	return v.validate(ctx, url.Values{"text": {text}})
}

// ValidateFile validates the CSS in a local file.
func (v *CSSValidator) ValidateFile(ctx context.Context, path string) (*Results, error) {
	data, err := readLocalFile(path)
	if err != nil {
		return nil, err
	}
	return v.ValidateText(ctx, string(data))
}

// ValidateReader validates the CSS read from r.
func (v *CSSValidator) ValidateReader(ctx context.Context, r io.Reader) (*Results, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading css: %w", err)
	}
	return v.ValidateText(ctx, string(data))
}

func (v *CSSValidator) validate(ctx context.Context, content url.Values) (*Results, error) {
	params, err := v.requestParams(content, "uri", "text")
	if err != nil {
		return nil, err
	}

	resp, body, err := v.send(ctx, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}
	if err := v.checkStatus(resp); err != nil {
		return nil, err
	}

	results, err := parseCSSResponse(body)
	if err != nil {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s answered %s", ErrValidatorUnavailable, v.uri, resp.Status)
		}
		return nil, v.handleError(err)
	}
	return results, nil
}
