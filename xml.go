package isapi

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"golang.org/x/net/html/charset"
)

var defaultNamespace = regexp.MustCompile(` xmlns="[^"]+"`)

// stripNamespaces removes default namespace declarations, which devices
// emit inconsistently between firmware versions
func stripNamespaces(body []byte) []byte {
	return defaultNamespace.ReplaceAll(body, nil)
}

// parseXML parses a device response after stripping default namespaces.
// Devices occasionally declare non-UTF-8 encodings.
func parseXML(body []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(stripNamespaces(body)); err != nil {
		return nil, errors.Annotate(err, "parse xml")
	}
	if doc.Root() == nil {
		return nil, errors.New("parse xml: empty document")
	}
	return doc, nil
}

// newRequestDocument starts an XML request body with the declaration
// devices expect
func newRequestDocument(root string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc, doc.CreateElement(root)
}

// childText returns the trimmed text of a direct child, or "" when absent
func childText(el *etree.Element, tag string) string {
	if el == nil {
		return ""
	}
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}
