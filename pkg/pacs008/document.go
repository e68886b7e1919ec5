// Package pacs008 models inbound ISO 20022 FI-to-FI customer credit transfers
// (pacs.008) as generic document trees and projects them onto the flat
// TransferRecord used by the rest of the pipeline.
package pacs008

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// WrapperSegment is the optional segment that wraps the group header and the
// transaction list in a full pacs.008 document.
const WrapperSegment = "FIToFICstmrCdtTrf"

// TextKey is the key under which an XML element's character data is stored when
// the element also carries attributes, e.g. <InstdAmt Ccy="USD">100.50</InstdAmt>
// becomes {"": "100.50", "Ccy": "USD"}.
const TextKey = ""

// Document is an arbitrarily nested key/value tree holding one inbound
// credit-transfer message. Values are strings, json.Number, nested trees
// (map[string]any) or ordered sequences ([]any). A Document is never mutated
// after it has been decoded.
type Document map[string]any

// ErrEmptyDocument is returned when the raw input holds no data at all.
var ErrEmptyDocument = errors.New("empty pacs.008 document")

// Decode parses raw bytes into a Document. Input whose first non-space byte is
// '<' is treated as XML, everything else as JSON.
func Decode(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmptyDocument
	}
	if trimmed[0] == '<' {
		return DecodeXML(trimmed)
	}
	return DecodeJSON(trimmed)
}

// DecodeJSON parses a JSON object. Numbers are kept as json.Number so that
// amounts never pass through a float.
func DecodeJSON(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON document: %w", err)
	}
	if doc == nil {
		return nil, ErrEmptyDocument
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode JSON document: unexpected data after the top-level object")
	}
	return doc, nil
}

// DecodeXML parses an XML document. The root element is unwrapped, namespace
// prefixes are dropped, attributes become plain keys and character data of an
// element with attributes is stored under TextKey. Repeated sibling elements
// become sequences; a single element stays a tree.
func DecodeXML(raw []byte) (Document, error) {
	m, err := mxj.NewMapXml(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode XML document: %w", err)
	}
	for _, root := range m {
		if tree, ok := normalizeXML(root).(map[string]any); ok {
			return Document(tree), nil
		}
		// A root element with only character data carries no segments.
		return Document{}, nil
	}
	return nil, ErrEmptyDocument
}

func normalizeXML(v any) any {
	switch t := v.(type) {
	case mxj.Map:
		return normalizeXML(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[xmlKey(k)] = normalizeXML(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalizeXML(child)
		}
		return out
	default:
		return v
	}
}

func xmlKey(k string) string {
	if k == "#text" {
		return TextKey
	}
	k = strings.TrimPrefix(k, "-")
	if i := strings.LastIndex(k, ":"); i >= 0 {
		k = k[i+1:]
	}
	return k
}
