package crypto

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize encodes v as RFC 8785 canonical JSON. Strings and object keys
// are NFC-normalized and null object members are dropped before encoding.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	normalized, err := normalize(generic)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(encoded)
}

func normalize(v any) (any, error) {
	switch value := v.(type) {
	case string:
		return norm.NFC.String(value), nil
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, member := range value {
			if member == nil {
				continue
			}
			normKey := norm.NFC.String(key)
			if _, ok := out[normKey]; ok {
				return nil, ErrKeyCollision
			}
			normValue, err := normalize(member)
			if err != nil {
				return nil, err
			}
			out[normKey] = normValue
		}
		return out, nil
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			normItem, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = normItem
		}
		return out, nil
	default:
		return value, nil
	}
}
