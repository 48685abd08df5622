package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxvaer/w3ccheck/internal/crawl"
	"github.com/maxvaer/w3ccheck/pkg/w3c"
	"go.uber.org/zap"
)

const (
	BadHTMLDescription = "Bad HTML (W3C Validator)"
	BadCSSDescription  = "Bad CSS (W3C Validator)"
)

// TextValidator validates a block of markup or CSS. Both w3c.MarkupValidator
// and w3c.CSSValidator satisfy it.
type TextValidator interface {
	ValidateText(ctx context.Context, text string) (*w3c.Results, error)
}

// W3CValidator sends every HTML page that answered 200 to the W3C markup
// validator and fails pages the validator finds errors in. With
// ShowWarnings set, warnings fail a page too.
type W3CValidator struct {
	ShowWarnings bool

	validator TextValidator
	logger    *zap.Logger
}

// NewW3CValidator returns a markup handler using v.
func NewW3CValidator(v TextValidator, showWarnings bool, logger *zap.Logger) *W3CValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &W3CValidator{ShowWarnings: showWarnings, validator: v, logger: logger}
}

func (h *W3CValidator) Name() string { return "w3c-markup" }

func (h *W3CValidator) Handle(ctx context.Context, result *crawl.Result) (*crawl.Result, error) {
	if !result.OK() || !result.Response.IsHTML() {
		return nil, nil
	}
	return validatePage(ctx, h.validator, h.logger, result, BadHTMLDescription, h.ShowWarnings)
}

// CSSValidator is the W3CValidator counterpart for style sheets served as
// text/css.
type CSSValidator struct {
	ShowWarnings bool

	validator TextValidator
	logger    *zap.Logger
}

// NewCSSValidator returns a style sheet handler using v.
func NewCSSValidator(v TextValidator, showWarnings bool, logger *zap.Logger) *CSSValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSSValidator{ShowWarnings: showWarnings, validator: v, logger: logger}
}

func (h *CSSValidator) Name() string { return "w3c-css" }

func (h *CSSValidator) Handle(ctx context.Context, result *crawl.Result) (*crawl.Result, error) {
	if !result.OK() || !result.Response.IsCSS() {
		return nil, nil
	}
	return validatePage(ctx, h.validator, h.logger, result, BadCSSDescription, h.ShowWarnings)
}

func validatePage(ctx context.Context, v TextValidator, logger *zap.Logger, result *crawl.Result, description string, showWarnings bool) (*crawl.Result, error) {
	res, err := v.ValidateText(ctx, string(result.Response.Body))
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", result.URL, err)
	}

	logger.Debug("Page validated",
		zap.String("url", result.URL),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
	)

	if len(res.Errors) == 0 && (!showWarnings || len(res.Warnings) == 0) {
		return nil, nil
	}

	failed := result.Dup()
	failed.Description = description
	failed.Data = FormatMessages(res, showWarnings)
	return failed, nil
}

// FormatMessages renders one line per message, errors first:
//
//	Line: 1, column: 1, error: no document type declaration
//
// Warnings are included only when withWarnings is set.
func FormatMessages(res *w3c.Results, withWarnings bool) string {
	lines := make([]string, 0, len(res.Errors)+len(res.Warnings))
	for _, m := range res.Errors {
		lines = append(lines, fmt.Sprintf("Line: %d, column: %d, error: %s", m.Line, m.Col, m.Message))
	}
	if withWarnings {
		for _, m := range res.Warnings {
			lines = append(lines, fmt.Sprintf("Line: %d, column: %d, warning: %s", m.Line, m.Col, m.Message))
		}
	}
	return strings.Join(lines, "\n")
}
