// Package jsonutil provides a JSON object wrapper that preserves
// document key order.
//
// Key order is semantic in this tool: packageJsonUpdates entries are
// evaluated in document order, generators run in document order, and
// manifests are rewritten without reshuffling their fields. The standard
// library's map-based decoding discards order, so Object keeps its own
// key list alongside raw values.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a JSON object whose keys keep their document order.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]json.RawMessage)}
}

// UnmarshalJSON decodes a JSON object, recording key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	o.keys = nil
	o.values = make(map[string]json.RawMessage)

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		o.Set(key, raw)
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the object with keys in their recorded order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(o.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value for key.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Set stores a raw value, appending the key if it is new.
func (o *Object) Set(key string, value json.RawMessage) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Delete removes a key if present.
func (o *Object) Delete(key string) {
	if _, exists := o.values[key]; !exists {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	return o.keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// GetObject decodes the value at key into a nested Object.
func (o *Object) GetObject(key string) (*Object, bool, error) {
	raw, ok := o.Get(key)
	if !ok {
		return nil, false, nil
	}
	nested := NewObject()
	if err := json.Unmarshal(raw, nested); err != nil {
		return nil, true, err
	}
	return nested, true, nil
}

// GetString decodes the value at key as a string.
func (o *Object) GetString(key string) (string, bool) {
	raw, ok := o.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// String encodes s as a raw JSON string value.
func String(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// Indent re-indents JSON produced by MarshalJSON for on-disk manifests.
func Indent(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
