package gateway

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// decode converts a decoded socket.io payload, usually a map[string]any,
// into out.
func decode(in any, out any) error {
	if in == nil {
		return fmt.Errorf("empty payload")
	}
	raw, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// plain converts a typed value into the map/slice form socket.io encodes.
func plain(v any) (any, error) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
