// Package dispatch is the single validation and routing path shared by the
// TCP and HTTP channels. Identical requests get identical semantics no
// matter which transport delivered them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/engine"
	"github.com/fyrsmithlabs/embedd/internal/governor"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

// Channel identifies the transport a request arrived on. It only feeds
// logging and metrics; behavior never branches on it.
type Channel string

const (
	ChannelTCP  Channel = "tcp"
	ChannelHTTP Channel = "http"
)

// Request is the channel-independent request shape both adapters convert
// into before dispatching.
type Request struct {
	Text       string
	Model      string
	ChunkStyle string
	ChunkSize  int
}

// Result is a successful embedding.
type Result struct {
	Model     string
	Embedding []float32
}

// Config parameterizes the dispatcher.
type Config struct {
	// MaxTextLength is the validation ceiling for request text, in bytes.
	MaxTextLength int
	// RequestTimeout is the deadline applied to each engine call.
	RequestTimeout time.Duration
}

// Dispatcher validates a request, resolves its model, and invokes the
// engine under the governor's task admission and the configured deadline.
type Dispatcher struct {
	cfg      Config
	registry *registry.Registry
	engine   engine.Engine
	gov      *governor.Governor
	logger   *zap.Logger
}

// New creates a dispatcher.
func New(cfg Config, reg *registry.Registry, eng engine.Engine, gov *governor.Governor, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: reg,
		engine:   eng,
		gov:      gov,
		logger:   logger,
	}
}

// Dispatch runs one request end to end and returns either a result or a
// structured error, never both.
func (d *Dispatcher) Dispatch(ctx context.Context, ch Channel, req Request) (Result, *Error) {
	start := time.Now()
	res, derr := d.dispatch(ctx, ch, req)

	code := "OK"
	if derr != nil {
		code = derr.Kind.Code()
	}
	observeRequest(ch, code, time.Since(start))
	return res, derr
}

func (d *Dispatcher) dispatch(ctx context.Context, ch Channel, req Request) (Result, *Error) {
	// Admission before any work; at capacity the request is rejected
	// immediately rather than queued.
	if !d.gov.AcquireTask() {
		return Result{}, newError(KindConnectionLimit, "server at capacity, try again later")
	}
	defer d.gov.ReleaseTask()

	if derr := d.validate(req); derr != nil {
		return Result{}, derr
	}

	desc, err := d.registry.Resolve(req.Model)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownModel):
			return Result{}, newErrorf(KindUnknownModel, "unknown model", req.Model)
		default:
			return Result{}, newError(KindInvalidRequest, "no embedding model available")
		}
	}
	if desc.State != registry.StateReady {
		return Result{}, newErrorf(KindModelNotReady, "model is not ready", desc.Name)
	}

	if d.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.RequestTimeout)
		defer cancel()
	}

	embedStart := time.Now()
	vec, err := d.engine.Embed(ctx, req.Text, desc.Name, engine.Options{
		ChunkStyle: req.ChunkStyle,
		ChunkSize:  req.ChunkSize,
	})
	observeEmbed(desc.Name, time.Since(embedStart), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, newError(KindTimeout, "embedding request timed out")
		}
		if errors.Is(err, context.Canceled) {
			return Result{}, newError(KindTimeout, "embedding request cancelled")
		}
		// Engine internals stay in the log; the caller sees a generic error.
		d.logger.Error("embedding generation failed",
			zap.String("channel", string(ch)),
			zap.String("model", desc.Name),
			zap.Error(err))
		return Result{}, newError(KindInference, "embedding generation failed")
	}

	// Postcondition: the vector length equals the model's declared
	// dimension. A mismatch is a server defect, not a user error.
	if len(vec) != desc.Dimension {
		d.logger.Error("embedding dimension mismatch",
			zap.String("model", desc.Name),
			zap.Int("want", desc.Dimension),
			zap.Int("got", len(vec)))
		return Result{}, newError(KindInternal, "internal server error")
	}

	return Result{Model: desc.Name, Embedding: vec}, nil
}

// validate applies the request checks in their fixed order: empty text,
// oversized text, then anything else. The first failing check wins.
func (d *Dispatcher) validate(req Request) *Error {
	if len(req.Text) == 0 {
		return newError(KindEmptyText, "text field cannot be empty")
	}
	if d.cfg.MaxTextLength > 0 && len(req.Text) > d.cfg.MaxTextLength {
		return newErrorf(KindTextTooLong,
			fmt.Sprintf("text exceeds maximum length of %d characters", d.cfg.MaxTextLength),
			fmt.Sprintf("got %d", len(req.Text)))
	}
	if !utf8.ValidString(req.Text) {
		return newError(KindInvalidRequest, "text must be valid UTF-8")
	}
	return nil
}
