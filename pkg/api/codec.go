package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec encodes plain Go structs as JSON. It is registered under the
// "json" name so Connect serves application/json requests with it.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
