package service

import (
	"encoding/json"
)

// jsonCodec lets connect carry plain go structs instead of protobuf
// messages, it replaces connect's built in "json" codec.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
