// Package w3c is a client for the W3C Markup Validation Service and the W3C
// CSS Validation Service.
//
// Both services are queried through their SOAP 1.2 output mode. The markup
// validator also supports a quick check that issues a HEAD request and reads
// the validity and error count from response headers.
package w3c

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sahilm/fuzzy"
)

const (
	// MarkupValidatorURI is the public markup validator endpoint.
	MarkupValidatorURI = "https://validator.w3.org/check"
	// CSSValidatorURI is the public CSS validator endpoint.
	CSSValidatorURI = "https://jigsaw.w3.org/css-validator/validator"

	// SOAPOutputParam is the value of the output parameter on every request.
	SOAPOutputParam = "soap12"

	// HeadStatusHeader carries "Valid", "Invalid" or "Abort" on HEAD checks.
	HeadStatusHeader = "X-W3C-Validator-Status"
	// HeadErrorCountHeader carries the number of errors on HEAD checks.
	HeadErrorCountHeader = "X-W3C-Validator-Errors"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "w3ccheck/1.0"

	// DefaultTimeout bounds a single round trip to the validator.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrMissingContent is returned when a request names no uri, fragment,
	// text or uploaded file.
	ErrMissingContent = errors.New("w3c: an uri, uploaded file, fragment or text is required")
	// ErrUnknownOption is returned when a lookup key or option value is not
	// recognised. The client is left unchanged.
	ErrUnknownOption = errors.New("w3c: unknown option")
	// ErrValidatorUnavailable wraps transport failures and unexpected HTTP
	// statuses from the validator.
	ErrValidatorUnavailable = errors.New("w3c: validator unavailable")
	// ErrParsing wraps failures to understand the validator's response.
	ErrParsing = errors.New("w3c: unable to parse the response from the validator")
)

// Doctypes maps lookup keys to the document type names the markup validator
// accepts for its doctype parameter.
var Doctypes = map[string]string{
	"html5":                            "HTML5",
	"xhtml10_strict":                   "XHTML 1.0 Strict",
	"xhtml10_transitional":             "XHTML 1.0 Transitional",
	"xhtml10_frameset":                 "XHTML 1.0 Frameset",
	"xhtml401_strict":                  "HTML 4.01 Strict",
	"xhtml401_transitional":            "HTML 4.01 Transitional",
	"xhtml401_frameset":                "HTML 4.01 Frameset",
	"html32":                           "HTML 3.2",
	"html20":                           "HTML 2.0",
	"iso_iec_15445_2000":               "ISO/IEC 15445:2000 (\"ISO-HTML\")",
	"xhtml11":                          "XHTML 1.1",
	"xhtml_basic10":                    "XHTML Basic 1.0",
	"xhtml_print10":                    "XHTML-Print 1.0",
	"xhtml11_plus_mathml20":            "XHTML 1.1 plus MathML 2.0",
	"xhtml11_plus_mathml20_plus_svg11": "XHTML 1.1 plus MathML 2.0 plus SVG 1.1",
	"mathml20":                         "MathML 2.0",
	"svg10":                            "SVG 1.0",
	"svg11":                            "SVG 1.1",
	"svg11_tiny":                       "SVG 1.1 Tiny",
	"svg11_basic":                      "SVG 1.1 Basic",
	"smil10":                           "SMIL 1.0",
	"smil20":                           "SMIL 2.0",
}

// Charsets maps lookup keys to character encoding names.
var Charsets = map[string]string{
	"utf_8":        "utf-8",
	"utf_16":       "utf-16",
	"iso_8859_1":   "iso-8859-1",
	"iso_8859_2":   "iso-8859-2",
	"iso_8859_3":   "iso-8859-3",
	"iso_8859_4":   "iso-8859-4",
	"iso_8859_5":   "iso-8859-5",
	"iso_8859_6i":  "iso-8859-6-i",
	"iso_8859_7":   "iso-8859-7",
	"iso_8859_8":   "iso-8859-8",
	"iso_8859_8i":  "iso-8859-8-i",
	"iso_8859_9":   "iso-8859-9",
	"iso_8859_10":  "iso-8859-10",
	"iso_8859_11":  "iso-8859-11",
	"iso_8859_13":  "iso-8859-13",
	"iso_8859_14":  "iso-8859-14",
	"iso_8859_15":  "iso-8859-15",
	"iso_8859_16":  "iso-8859-16",
	"us_ascii":     "us-ascii",
	"euc_jp":       "euc-jp",
	"shift_jis":    "shift_jis",
	"iso_2022_jp":  "iso-2022-jp",
	"euc_kr":       "euc-kr",
	"ksc_5601":     "ksc_5601",
	"gb_2312":      "gb2312",
	"gb_18030":     "gb18030",
	"big5":         "big5",
	"big5_hkscs":   "big5-HKSCS",
	"tis_620":      "tis-620",
	"koi8_r":       "koi8-r",
	"koi8_u":       "koi8-u",
	"iso_ir_111":   "iso-ir-111",
	"macintosh":    "macintosh",
	"windows_1250": "windows-1250",
	"windows_1251": "windows-1251",
	"windows_1252": "windows-1252",
	"windows_1253": "windows-1253",
	"windows_1254": "windows-1254",
	"windows_1255": "windows-1255",
	"windows_1256": "windows-1256",
	"windows_1257": "windows-1257",
}

// CSSProfiles maps the CSS validator's profile keys to display names. The
// key, not the display name, is what gets sent.
var CSSProfiles = map[string]string{
	"css1":     "CSS version 1",
	"css2":     "CSS version 2",
	"css21":    "CSS version 2.1",
	"css3":     "CSS version 3",
	"svg":      "SVG",
	"svgbasic": "SVG Basic",
	"svgtiny":  "SVG Tiny",
	"mobile":   "Mobile",
	"atsc_tv":  "ATSC TV",
	"tv":       "TV",
}

// unknownKey builds the ErrUnknownOption error for a lookup key, naming the
// closest known key when there is one.
func unknownKey(kind, key string, table map[string]string) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if matches := fuzzy.Find(key, keys); len(matches) > 0 {
		return fmt.Errorf("%w: %s %q (did you mean %q?)", ErrUnknownOption, kind, key, matches[0].Str)
	}
	return fmt.Errorf("%w: %s %q", ErrUnknownOption, kind, key)
}
