package extractor

import (
	"encoding/json"
	"strings"
)

// Source labels which strategy produced the line items.
type Source string

// Line item sources in precedence order.
const (
	SourceEdited     Source = "edited"
	SourceFlat       Source = "ocr.line_items"
	SourcePrediction Source = "ocr.prediction.line_items"
	SourceDocument   Source = "ocr.document.inference.prediction.line_items"
	SourceRawText    Source = "ocr_raw_response"
	SourceSynthetic  Source = "synthetic"
)

// Match is a line item array found in a vendor payload together with the
// object that contained it, which carries the document-level tax fields.
type Match struct {
	Source   Source
	Items    []any
	Document map[string]any
}

// Resolver looks for line items in one vendor payload shape.
type Resolver struct {
	Source  Source
	Resolve func(in Input) (Match, bool)
}

// DefaultResolvers are tried in order; the first non-empty match wins.
var DefaultResolvers = []Resolver{
	{Source: SourceFlat, Resolve: onOCR(SourceFlat)},
	{Source: SourcePrediction, Resolve: onOCR(SourcePrediction, "prediction")},
	{Source: SourceDocument, Resolve: onOCR(SourceDocument, "document", "inference", "prediction")},
	{Source: SourceRawText, Resolve: fromRawText},
}

// FirstMatch runs resolvers in order and returns the first match.
func FirstMatch(in Input, resolvers []Resolver) (Match, bool) {
	for _, r := range resolvers {
		if m, ok := r.Resolve(in); ok {
			return m, true
		}
	}
	return Match{}, false
}

func onOCR(source Source, path ...string) func(Input) (Match, bool) {
	return func(in Input) (Match, bool) {
		return lineItemsAt(in.OCR, source, path...)
	}
}

// lineItemsAt walks path from root and expects a non-empty line_items array there.
func lineItemsAt(root map[string]any, source Source, path ...string) (Match, bool) {
	doc, ok := walk(root, path...)
	if !ok {
		return Match{}, false
	}
	items, ok := doc["line_items"].([]any)
	if !ok || len(items) == 0 {
		return Match{}, false
	}
	return Match{Source: source, Items: items, Document: doc}, true
}

func walk(root map[string]any, path ...string) (map[string]any, bool) {
	if root == nil {
		return nil, false
	}
	cur := root
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// fromRawText parses the secondary stored response text and searches it
// with the same structural shapes. Malformed JSON counts as absent.
func fromRawText(in Input) (Match, bool) {
	raw, ok := in.Metadata[metaRawText].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return Match{}, false
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Match{}, false
	}
	for _, path := range [][]string{nil, {"prediction"}, {"document", "inference", "prediction"}} {
		if m, ok := lineItemsAt(parsed, SourceRawText, path...); ok {
			return m, true
		}
	}
	return Match{}, false
}
