package dmarc

import (
	"strings"

	"github.com/clbanning/mxj/v2"

	// needed to handle reports not encoded as utf-8
	"github.com/emersion/go-message/charset"
)

// some xmls contain invalid XML by adding an unclosed xs tag
const xsTag = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="http://dmarc.org/dmarc-xml/0.1">`

func init() {
	mxj.XmlCharsetReader = charset.Reader
}

// Document is the generic tree of a parsed xml file. Values are either a
// string, a map[string]any for nested elements or a []any for repeated
// sibling elements.
type Document map[string]any

// ParseDocument converts xml text into a Document without any knowledge of
// the DMARC schema
func ParseDocument(xmlText string) (Document, error) {
	xmlText = strings.ReplaceAll(xmlText, xsTag, "")
	if strings.TrimSpace(xmlText) == "" {
		return nil, &ParseError{Err: errEmptyDocument}
	}

	m, err := mxj.NewMapXml([]byte(xmlText))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return Document(m), nil
}
