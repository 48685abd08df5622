package w3c

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

const markupResponsePath = "./env:Envelope/env:Body/m:markupvalidationresponse"

// parseMarkupResponse reads a SOAP 1.2 response of the markup validator.
// A SOAP fault is turned into one error per reason text.
func parseMarkupResponse(body []byte) (*Results, error) {
	doc, err := readDocument(body)
	if err != nil {
		return nil, err
	}

	results := newResults()
	resp := doc.FindElement(markupResponsePath)
	faults := doc.FindElements("./env:Envelope/env:Body/env:Fault/env:Reason/env:Text")
	if resp == nil && len(faults) == 0 {
		return nil, fmt.Errorf("%w: no markupvalidationresponse or fault in envelope", ErrParsing)
	}

	if resp != nil {
		results.Doctype = childText(resp, "m:doctype")
		results.URI = childText(resp, "m:uri")
		results.Charset = childText(resp, "m:charset")
		results.CheckedBy = childText(resp, "m:checkedby")
		results.Validity = isTrue(childText(resp, "m:validity"))

		for _, el := range resp.FindElements("./m:warnings/m:warninglist/m:warning") {
			results.AddMessage(newMessage(TypeWarning, messageFields(el)))
		}
		for _, el := range resp.FindElements("./m:errors/m:errorlist/m:error") {
			results.AddMessage(newMessage(TypeError, messageFields(el)))
		}
		for _, el := range resp.FindElements("./m:debug") {
			results.AddDebugMessage(el.SelectAttrValue("name", ""), elementText(el))
		}
	}

	for _, el := range faults {
		results.AddMessage(&Message{Type: TypeError, Message: elementText(el)})
	}
	return results, nil
}

// parseCSSResponse reads a SOAP 1.2 response of the CSS validator. Element
// prefixes are not checked; the CSS validator has changed namespaces over
// time while keeping local names.
func parseCSSResponse(body []byte) (*Results, error) {
	doc, err := readDocument(body)
	if err != nil {
		return nil, err
	}

	resp := doc.FindElement("//cssvalidationresponse")
	if resp == nil {
		return nil, fmt.Errorf("%w: no cssvalidationresponse in envelope", ErrParsing)
	}

	results := newResults()
	results.URI = childText(resp, "uri")
	results.CheckedBy = childText(resp, "checkedby")
	results.Validity = isTrue(childText(resp, "validity"))
	results.CSSLevel = childText(resp, "csslevel")

	for _, listTag := range []string{"warninglist", "errorlist"} {
		for _, list := range doc.FindElements("//" + listTag) {
			uri := childText(list, "uri")
			for _, typ := range []MessageType{TypeWarning, TypeError} {
				for _, el := range list.FindElements("./" + string(typ)) {
					fields := messageFields(el)
					fields["uri"] = uri
					results.AddMessage(newMessage(typ, fields))
				}
			}
		}
	}
	return results, nil
}

// maxHeadErrors bounds the error count accepted from a HEAD check. The
// markup validator stops reporting long before this.
const maxHeadErrors = 10000

// parseHeadResponse builds results from the summary headers of a HEAD
// check. The error list holds one empty entry per reported error.
func parseHeadResponse(h http.Header, uri string) (*Results, error) {
	status := h.Get(HeadStatusHeader)
	if status == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrParsing, HeadStatusHeader)
	}

	results := newResults()
	results.URI = uri
	results.Validity = strings.EqualFold(strings.TrimSpace(status), "valid")

	count := atoi(h.Get(HeadErrorCountHeader))
	if count > maxHeadErrors {
		return nil, fmt.Errorf("%w: %s of %d exceeds %d", ErrParsing, HeadErrorCountHeader, count, maxHeadErrors)
	}
	for i := count; i > 0; i-- {
		results.AddError("")
	}
	return results, nil
}

func readDocument(body []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsing, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: empty response", ErrParsing)
	}
	return doc, nil
}

// messageFields maps the local name of every child element that carries
// text to that text.
func messageFields(el *etree.Element) map[string]string {
	fields := make(map[string]string)
	for _, child := range el.ChildElements() {
		if text := elementText(child); text != "" {
			fields[child.Tag] = text
		}
	}
	return fields
}

func childText(el *etree.Element, tag string) string {
	child := el.FindElement("./" + tag)
	if child == nil {
		return ""
	}
	return elementText(child)
}

// elementText joins the character data (CDATA included) directly under el.
func elementText(el *etree.Element) string {
	var b strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func isTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
