package mindmap

import (
	"encoding/json"
	"strings"
)

type ExtractionKind string

const (
	NoDocumentFound   ExtractionKind = "NO_DOCUMENT_FOUND"
	MalformedDocument ExtractionKind = "MALFORMED_DOCUMENT"
	InvalidStructure  ExtractionKind = "INVALID_STRUCTURE"
)

type ExtractionError struct {
	Kind   ExtractionKind
	Detail string
}

func (e *ExtractionError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Extract pulls a validated tree out of a raw model reply. Replies are
// prose that should contain a JSON object, often inside code fences; the
// candidate span runs from the first '{' to the last '}'. The span is
// greedy, not brace-balanced: a reply with several JSON blocks yields one
// span covering them all, which then fails to parse.
func Extract(raw string) (Node, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Node{}, &ExtractionError{Kind: NoDocumentFound, Detail: "reply contains no JSON object"}
	}

	var doc any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
		return Node{}, &ExtractionError{Kind: MalformedDocument, Detail: err.Error()}
	}

	node, err := Validate(doc)
	if err != nil {
		return Node{}, &ExtractionError{Kind: InvalidStructure, Detail: err.Error()}
	}
	return node, nil
}
