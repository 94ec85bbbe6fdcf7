package store

import (
	"encoding/json"
	"fmt"
)

// The helpers below operate on documents decoded into generic JSON trees. Every
// backend keeps documents in this shape so sub-path writes behave the same everywhere.

func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode raw value: %w", err)
		}
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

func decodeDocument(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func newDocument(initial any) (map[string]any, error) {
	v, err := normalize(initial)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document value must be an object, got %T", v)
	}
	return doc, nil
}

func getAt(node any, segments []string) (any, bool) {
	for _, seg := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, node != nil
}

// setAt writes v at segments below doc, creating intermediate objects. A nil v
// deletes the location. segments must not be empty.
func setAt(doc map[string]any, segments []string, v any) {
	node := doc
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			if v == nil {
				return
			}
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	last := segments[len(segments)-1]
	if v == nil {
		delete(node, last)
		return
	}
	node[last] = v
}

// applyUpdate merges fields into doc at the inner location. Field names may contain
// slashes to address nested locations.
func applyUpdate(doc map[string]any, inner []string, fields map[string]any) error {
	type write struct {
		segments []string
		value    any
	}
	writes := make([]write, 0, len(fields))
	for name, value := range fields {
		segments := append(append([]string{}, inner...), ParsePath(name)...)
		if len(segments) == 0 {
			return fmt.Errorf("%w: empty field name", ErrInvalidPath)
		}
		v, err := normalize(value)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		writes = append(writes, write{segments: segments, value: v})
	}
	// nothing is touched until every field is known to be valid
	for _, w := range writes {
		setAt(doc, w.segments, w.value)
	}
	return nil
}

// applySet replaces the value at inner. It returns the new document, or nil when the
// whole document was deleted.
func applySet(doc map[string]any, inner []string, value any) (map[string]any, error) {
	v, err := normalize(value)
	if err != nil {
		return nil, err
	}
	if len(inner) == 0 {
		if v == nil {
			return nil, nil
		}
		replaced, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("document value must be an object, got %T", v)
		}
		return replaced, nil
	}
	setAt(doc, inner, v)
	return doc, nil
}

func encodeAt(doc map[string]any, inner []string) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	v, ok := getAt(doc, inner)
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}
