package normalize

import (
	"bytes"
	"encoding/json"
)

// DropNulls removes object members whose value is null, at any depth, and null
// array elements. A null field means "no change", the same as an absent one.
// Payloads without a null literal are returned unchanged.
func DropNulls(payload json.RawMessage) (json.RawMessage, error) {
	if !bytes.Contains(payload, []byte("null")) {
		return payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(pruneNulls(v))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func pruneNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = pruneNulls(child)
		}
		return t
	case []any:
		kept := t[:0]
		for _, child := range t {
			if child != nil {
				kept = append(kept, pruneNulls(child))
			}
		}
		return kept
	default:
		return v
	}
}
