// Package rpc implements the Master RPC surface: a gRPC service over
// HTTP/2 with mutual TLS, serving both the client-side Daemon and the
// services' own running containers.
//
// With no .proto source to generate stubs from, the wire messages here
// are plain Go structs marshaled with a small encoding.Codec registered
// under the content-subtype "json" instead of protobuf's "proto". The
// transport -- HTTP/2 framing, TLS, interceptors, streaming plumbing --
// is the real grpc-go stack; only the codec changes, through grpc's own
// supported codec-negotiation mechanism.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
