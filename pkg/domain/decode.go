package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeResult decodes a saved result value into a typed target.
//
// Persisted results round-trip through JSON, so numbers come back as float64
// and structs come back as map[string]any. This helper restores them into a
// caller-provided struct, converting weakly (float64 -> int, etc.) the same
// way on every backend.
func DecodeResult(value any, target any) error {
	if value == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("failed to build result decoder: %w", err)
	}

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
