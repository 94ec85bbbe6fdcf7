package session

import (
	"encoding/json"
)

// JSONCodec lets Connect carry plain Go structs as JSON. It takes over the "json"
// codec name, so clients send application/json and application/connect+json.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
