package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EmbedRequest is the request payload carried inside a frame. Chunking hints
// are forwarded to the engine untouched; the serving core never interprets
// them.
type EmbedRequest struct {
	Text       string `msgpack:"text"`
	Model      string `msgpack:"model,omitempty"`
	ChunkStyle string `msgpack:"chunk_style,omitempty"`
	ChunkSize  int    `msgpack:"chunk_size,omitempty"`
}

// ErrorPayload is the structured error body carried inside a frame when a
// request fails at the request level. Frame-level failures never produce a
// payload; the connection is torn down instead.
type ErrorPayload struct {
	Error   string `msgpack:"error"`
	Code    string `msgpack:"code,omitempty"`
	Details string `msgpack:"details,omitempty"`
}

// EncodeEmbedRequest serializes a request payload.
func EncodeEmbedRequest(req EmbedRequest) ([]byte, error) {
	b, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding embed request: %w", err)
	}
	return b, nil
}

// DecodeEmbedRequest deserializes a request payload.
func DecodeEmbedRequest(b []byte) (EmbedRequest, error) {
	var req EmbedRequest
	if err := msgpack.Unmarshal(b, &req); err != nil {
		return EmbedRequest{}, fmt.Errorf("wire: decoding embed request: %w", err)
	}
	return req, nil
}

// EncodeVector serializes a successful embedding response. The server emits
// exactly one canonical shape: a plain array of float32.
func EncodeVector(vec []float32) ([]byte, error) {
	b, err := msgpack.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding vector: %w", err)
	}
	return b, nil
}

// EncodeError serializes a structured error response.
func EncodeError(e ErrorPayload) ([]byte, error) {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding error payload: %w", err)
	}
	return b, nil
}
