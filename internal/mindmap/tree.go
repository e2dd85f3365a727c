// Package mindmap defines the mind-map tree document and the logic that
// turns untrusted model output into a validated tree.
package mindmap

import (
	"fmt"
	"strings"
)

// Node is one node of a mind-map tree. IDs are unique per tree by
// convention only; a node without an id is anonymous.
type Node struct {
	ID       string `json:"id,omitempty"`
	Topic    string `json:"topic"`
	Children []Node `json:"children"`
}

// DefaultTree is the canonical starting tree for a project with no
// snapshot history.
func DefaultTree() Node {
	return Node{ID: "root", Topic: "Central Topic", Children: []Node{}}
}

// ValidationError reports the first structural problem found in a candidate
// document. Path locates the offending field, e.g. "children[2].topic".
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Validate checks a decoded JSON value against the tree shape: an object
// with a non-empty string topic, a children array of valid nodes, and an
// optional string id. It walks depth-first, left-to-right, and returns the
// first failure. Pure function, no side effects.
func Validate(v any) (Node, error) {
	return validateNode(v, "")
}

func validateNode(v any, path string) (Node, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Node{}, &ValidationError{Path: path, Message: "node must be an object"}
	}

	var node Node

	if raw, present := obj["id"]; present && raw != nil {
		id, ok := raw.(string)
		if !ok {
			return Node{}, &ValidationError{Path: joinPath(path, "id"), Message: "id must be a string"}
		}
		node.ID = id
	}

	rawTopic, present := obj["topic"]
	if !present {
		return Node{}, &ValidationError{Path: joinPath(path, "topic"), Message: "topic is required"}
	}
	topic, ok := rawTopic.(string)
	if !ok {
		return Node{}, &ValidationError{Path: joinPath(path, "topic"), Message: "topic must be a string"}
	}
	if strings.TrimSpace(topic) == "" {
		return Node{}, &ValidationError{Path: joinPath(path, "topic"), Message: "topic must not be empty"}
	}
	node.Topic = topic

	rawChildren, present := obj["children"]
	if !present {
		return Node{}, &ValidationError{Path: joinPath(path, "children"), Message: "children is required"}
	}
	children, ok := rawChildren.([]any)
	if !ok {
		return Node{}, &ValidationError{Path: joinPath(path, "children"), Message: "children must be an array"}
	}

	node.Children = make([]Node, 0, len(children))
	for i, rawChild := range children {
		child, err := validateNode(rawChild, joinPath(path, fmt.Sprintf("children[%d]", i)))
		if err != nil {
			return Node{}, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
