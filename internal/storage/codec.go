package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the self-describing storage wrapper. Wrapping the value keeps
// a stored null distinguishable from an absent key: absence is a missing
// row, a stored null is {"data":null}.
type envelope struct {
	Data any `json:"data"`
}

// encodeValue serializes a value of arbitrary shape into the storage TEXT
// column format. HTML escaping is disabled so the stored form round-trips
// byte-for-byte with what the caller provided.
func encodeValue(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(envelope{Data: v}); err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// decodeValue parses a storage-format string back into the stored value.
// Numbers decode as json.Number to avoid float64 precision loss for values
// beyond 2^53.
func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return env.Data, nil
}
