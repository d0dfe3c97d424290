// Package client is a Go client for the embedd binary protocol. It supports
// pipelining: many Embed calls may be in flight on one connection, and
// responses are matched to callers by correlation id regardless of arrival
// order.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fyrsmithlabs/embedd/internal/wire"
)

// ErrClosed is returned by calls made after the connection shut down.
var ErrClosed = errors.New("client: connection closed")

// ServerError is a structured error returned by the server for one request.
// The connection remains usable after receiving one.
type ServerError struct {
	Code    string
	Message string
	Details string
}

func (e *ServerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// EmbedRequest describes one embedding request.
type EmbedRequest struct {
	Text       string
	Model      string
	ChunkStyle string
	ChunkSize  int
}

// Options configures a Client.
type Options struct {
	// DialTimeout bounds connection establishment. Zero means no timeout
	// beyond the dial context's own deadline.
	DialTimeout time.Duration
	// MaxPayloadBytes caps frames in both directions. Zero selects the
	// protocol default.
	MaxPayloadBytes uint32
}

// Client is a connection to an embedd server.
type Client struct {
	conn   net.Conn
	limits wire.Limits

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uuid.UUID]chan wire.Message
	err     error

	closeOnce sync.Once
}

// Dial connects to an embedd server.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dialing %s: %w", addr, err)
	}

	limits := wire.DefaultLimits()
	if opts.MaxPayloadBytes > 0 {
		limits.MaxPayloadBytes = opts.MaxPayloadBytes
	}

	c := &Client{
		conn:    conn,
		limits:  limits,
		pending: make(map[uuid.UUID]chan wire.Message),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. In-flight calls fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return nil
}

// Embed requests an embedding and waits for its response.
func (c *Client) Embed(ctx context.Context, req EmbedRequest) ([]float32, error) {
	payload, err := wire.EncodeEmbedRequest(wire.EmbedRequest{
		Text:       req.Text,
		Model:      req.Model,
		ChunkStyle: req.ChunkStyle,
		ChunkSize:  req.ChunkSize,
	})
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	ch := make(chan wire.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = wire.Encode(c.conn, wire.Message{CorrelationID: id, Payload: payload}, c.limits)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("client: writing request: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			if err == nil {
				err = ErrClosed
			}
			return nil, err
		}
		return decodeResponse(msg.Payload)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedText is Embed with only a text and the server's default model.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, EmbedRequest{Text: text})
}

// readLoop demultiplexes response frames to their waiting callers.
func (c *Client) readLoop() {
	for {
		msg, err := wire.Decode(c.conn, c.limits)
		if err != nil {
			c.fail(fmt.Errorf("client: connection lost: %w", err))
			return
		}

		// Responses answer by ReplyTo; servers also set CorrelationID to
		// the request's id, which serves as the fallback.
		id := msg.CorrelationID
		if msg.ReplyTo != nil {
			id = *msg.ReplyTo
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// fail closes the connection once and wakes every pending caller.
func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		pending := c.pending
		c.pending = make(map[uuid.UUID]chan wire.Message)
		c.mu.Unlock()

		_ = c.conn.Close()
		for _, ch := range pending {
			close(ch)
		}
	})
}

// responseEnvelope covers the map-shaped response payloads servers have
// emitted across protocol revisions, plus the structured error body.
type responseEnvelope struct {
	Embedding []float32 `msgpack:"embedding"`
	Vector    []float32 `msgpack:"vector"`
	Error     string    `msgpack:"error"`
	Code      string    `msgpack:"code"`
	Details   string    `msgpack:"details"`
}

// decodeResponse accepts the canonical plain-array payload as well as the
// older map shapes with an "embedding" or "vector" key.
func decodeResponse(payload []byte) ([]float32, error) {
	var vec []float32
	if err := msgpack.Unmarshal(payload, &vec); err == nil {
		return vec, nil
	}

	var env responseEnvelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("client: unrecognized response payload: %w", err)
	}
	if env.Error != "" {
		return nil, &ServerError{Code: env.Code, Message: env.Error, Details: env.Details}
	}
	if env.Embedding != nil {
		return env.Embedding, nil
	}
	if env.Vector != nil {
		return env.Vector, nil
	}
	return nil, errors.New("client: response carried no embedding")
}
