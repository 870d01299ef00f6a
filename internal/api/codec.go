// Package api defines the messages of the recreatio.v1.Vault gRPC service
// and the JSON codec both ends use to carry them.
package api

import (
	"encoding/json"
	"fmt"
)

// CodecName is the content subtype negotiated on the wire.
const CodecName = "json"

// Codec marshals messages as JSON. Byte slices travel as base64 strings.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }
