package ipc

import "encoding/json"

// jsonCodec is a grpc.Codec that marshals messages as JSON instead of
// protobuf wire format, so the service below can be hand-registered
// without a protoc-generated stub. grpc.Codec, which the v1.23 series
// this module pins still accepts alongside encoding.Codec, is the
// Marshal/Unmarshal/String trio below.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) String() string { return "json" }
