// Package tcpserver implements the binary protocol channel: an accept loop
// governed by the connection cap, and one read loop per connection that
// dispatches each frame concurrently so responses can complete out of
// order. Responses are associated to requests purely by correlation id.
package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/dispatch"
	"github.com/fyrsmithlabs/embedd/internal/governor"
	"github.com/fyrsmithlabs/embedd/internal/wire"
)

// Config holds TCP channel configuration.
type Config struct {
	Bind            string
	IdleTimeout     time.Duration
	MaxPayloadBytes uint32
}

// Server is the binary protocol listener.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	gov        *governor.Governor
	logger     *zap.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

// New creates a TCP channel server.
func New(cfg Config, d *dispatch.Dispatcher, gov *governor.Governor, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		gov:        gov,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("tcp channel listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop until ctx is cancelled. Connections over the
// governor's cap are closed immediately after accept.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.closeAll()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		if !s.gov.AcquireConnection() {
			s.logger.Warn("connection limit reached, refusing",
				zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		s.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs the per-connection read loop. Each decoded frame is
// handed to the dispatcher on its own goroutine, so several requests from
// one connection can be in flight at once and complete in any order.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	logger := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	logger.Debug("connection opened")

	connCtx, cancel := context.WithCancel(ctx)

	var (
		writeMu  sync.Mutex
		inflight atomic.Int64
		reqWG    sync.WaitGroup
	)
	defer func() {
		// Cancelling first releases in-flight engine calls promptly when
		// the client is already gone.
		cancel()
		_ = conn.Close()
		s.untrack(conn)
		s.gov.ReleaseConnection()
		reqWG.Wait()
		logger.Debug("connection closed")
	}()

	limits := wire.Limits{MaxPayloadBytes: s.cfg.MaxPayloadBytes}

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		msg, err := wire.Decode(conn, limits)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("client disconnected")
			case isTimeout(err):
				if inflight.Load() > 0 {
					// Requests are still running; the connection is busy,
					// not idle.
					continue
				}
				logger.Info("closing idle connection")
			case errors.Is(err, wire.ErrInvalidMagic),
				errors.Is(err, wire.ErrVersionMismatch),
				errors.Is(err, wire.ErrTruncatedRead),
				errors.Is(err, wire.ErrPayloadTooLarge):
				// Framing state is unrecoverable after a codec error.
				logger.Warn("protocol error, closing connection", zap.Error(err))
			default:
				if connCtx.Err() == nil {
					logger.Warn("read error", zap.Error(err))
				}
			}
			return
		}

		inflight.Add(1)
		reqWG.Add(1)
		go func(msg wire.Message) {
			defer reqWG.Done()
			defer inflight.Add(-1)
			s.handleRequest(connCtx, conn, &writeMu, msg, logger)
		}(msg)
	}
}

// handleRequest dispatches one frame and writes the response under the
// original correlation id. Request-level failures produce a structured
// error frame and leave the connection open.
func (s *Server) handleRequest(ctx context.Context, conn net.Conn, writeMu *sync.Mutex, msg wire.Message, logger *zap.Logger) {
	var payload []byte

	req, err := wire.DecodeEmbedRequest(msg.Payload)
	if err != nil {
		logger.Warn("malformed request payload", zap.Error(err))
		payload = errorPayload(&dispatch.Error{
			Kind:    dispatch.KindInvalidRequest,
			Message: "malformed request payload",
		})
	} else {
		res, derr := s.dispatcher.Dispatch(ctx, dispatch.ChannelTCP, dispatch.Request{
			Text:       req.Text,
			Model:      req.Model,
			ChunkStyle: req.ChunkStyle,
			ChunkSize:  req.ChunkSize,
		})
		if derr != nil {
			payload = errorPayload(derr)
		} else {
			payload, err = wire.EncodeVector(res.Embedding)
			if err != nil {
				logger.Error("failed to encode response", zap.Error(err))
				payload = errorPayload(&dispatch.Error{
					Kind:    dispatch.KindInternal,
					Message: "internal server error",
				})
			}
		}
	}

	replyTo := msg.CorrelationID
	out := wire.Message{
		CorrelationID: msg.CorrelationID,
		ReplyTo:       &replyTo,
		Payload:       payload,
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := wire.Encode(conn, out, wire.Limits{MaxPayloadBytes: s.cfg.MaxPayloadBytes}); err != nil {
		if ctx.Err() == nil {
			logger.Debug("failed to write response", zap.Error(err))
		}
	}
}

func errorPayload(derr *dispatch.Error) []byte {
	payload, err := wire.EncodeError(wire.ErrorPayload{
		Error:   derr.Message,
		Code:    derr.Kind.Code(),
		Details: derr.Detail,
	})
	if err != nil {
		return nil
	}
	return payload
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// closeAll tears down the listener and every live connection; their read
// loops observe the closed sockets and unwind.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
