package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// orderedMap is a decoded JSON object that remembers its key order, so the
// pretty printer lays fields out the way the record was written.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func (m *orderedMap) get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *orderedMap) getMap(key string) *orderedMap {
	v, _ := m.get(key)
	om, _ := v.(*orderedMap)
	return om
}

func (m *orderedMap) getString(key string) string {
	v, ok := m.get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return scalarString(v)
}

func (m *orderedMap) len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// pick returns a new map holding the listed keys that are present, in the given order.
func (m *orderedMap) pick(keys ...string) *orderedMap {
	out := &orderedMap{values: make(map[string]any, len(keys))}
	for _, k := range keys {
		if v, ok := m.get(k); ok {
			out.keys = append(out.keys, k)
			out.values[k] = v
		}
	}
	return out
}

var errNotObject = errors.New("record is not a JSON object")

// decodeOrdered parses one JSON object. Numbers are kept as json.Number.
func decodeOrdered(data []byte) (*orderedMap, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	om, ok := v.(*orderedMap)
	if !ok {
		return nil, errNotObject
	}
	return om, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return t, nil
	}
}

func decodeObject(dec *json.Decoder) (*orderedMap, error) {
	om := &orderedMap{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		if _, dup := om.values[key]; !dup {
			om.keys = append(om.keys, key)
		}
		om.values[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return om, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
