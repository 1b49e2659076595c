package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store clock at write time.
var ServerTimestamp = serverTimestamp{}

type arrayUnion struct {
	values []any
}

// ArrayUnion appends each value to the array field unless an equal element is
// already present.
func ArrayUnion(values ...any) any {
	return arrayUnion{values: values}
}

// applyFields resolves a write against the current field set and returns the
// next one. existing is not modified.
func applyFields(existing map[string]json.RawMessage, fields Fields, now time.Time) (map[string]json.RawMessage, error) {
	next := make(map[string]json.RawMessage, len(existing)+len(fields))
	for k, v := range existing {
		next[k] = v
	}

	for name, value := range fields {
		switch v := value.(type) {
		case serverTimestamp:
			raw, err := json.Marshal(now.UTC())
			if err != nil {
				return nil, err
			}
			next[name] = raw
		case arrayUnion:
			raw, err := unionInto(next[name], v.values, now)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			next[name] = raw
		case json.RawMessage:
			next[name] = append(json.RawMessage(nil), v...)
		default:
			raw, err := json.Marshal(resolveNested(v, now))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			next[name] = raw
		}
	}
	return next, nil
}

func unionInto(current json.RawMessage, values []any, now time.Time) (json.RawMessage, error) {
	var items []json.RawMessage
	if len(current) > 0 && string(current) != "null" {
		if err := json.Unmarshal(current, &items); err != nil {
			return nil, fmt.Errorf("not an array: %w", err)
		}
	}

	decoded := make([]any, 0, len(items))
	for _, item := range items {
		var v any
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, err
		}
		decoded = append(decoded, v)
	}

	for _, value := range values {
		raw, err := json.Marshal(resolveNested(value, now))
		if err != nil {
			return nil, err
		}
		var candidate any
		if err := json.Unmarshal(raw, &candidate); err != nil {
			return nil, err
		}
		if containsEqual(decoded, candidate) {
			continue
		}
		items = append(items, raw)
		decoded = append(decoded, candidate)
	}

	if items == nil {
		items = []json.RawMessage{}
	}
	return json.Marshal(items)
}

func containsEqual(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

// resolveNested lets ServerTimestamp appear one level down inside a map, as
// in {text, timestamp: ServerTimestamp} note entries.
func resolveNested(v any, now time.Time) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, inner := range m {
		if _, isTs := inner.(serverTimestamp); isTs {
			out[k] = now.UTC()
			continue
		}
		out[k] = inner
	}
	return out
}
