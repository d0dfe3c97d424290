// Package httpapi provides the REST adapter over the shared dispatch path.
// It is a thin translation layer: JSON in, dispatch, JSON out, with error
// codes identical to the binary channel's.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/dispatch"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

// Config holds HTTP adapter configuration.
type Config struct {
	Bind    string
	Version string
}

// Server is the REST adapter.
type Server struct {
	echo       *echo.Echo
	cfg        Config
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	logger     *zap.Logger
}

// New creates the REST adapter.
func New(cfg Config, d *dispatch.Dispatcher, reg *registry.Registry, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		cfg:        cfg,
		dispatcher: d,
		registry:   reg,
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/embed", s.handleEmbed)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http channel listening", zap.String("addr", s.cfg.Bind))
	if err := s.echo.Start(s.cfg.Bind); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, draining in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// EmbedRequest is the request body for POST /embed.
type EmbedRequest struct {
	Text       string `json:"text"`
	Model      string `json:"model,omitempty"`
	ChunkStyle string `json:"chunk_style,omitempty"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
}

// EmbedResponse is the response body for POST /embed.
type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
}

// ErrorResponse is the error body shared by all endpoints. It mirrors the
// binary channel's error payload field for field.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// ModelStatus describes one registered model in the health response.
type ModelStatus struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	State     string `json:"state"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string        `json:"status"`
	Model     string        `json:"model"`
	Dimension int           `json:"dimension"`
	Version   string        `json:"version"`
	Models    []ModelStatus `json:"models"`
}

// RootResponse is the service metadata returned for GET /.
type RootResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, RootResponse{
		Service:   "embedd",
		Version:   s.cfg.Version,
		Endpoints: []string{"POST /embed", "GET /health", "GET /metrics"},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	statuses := make([]ModelStatus, 0)
	for _, desc := range s.registry.List() {
		statuses = append(statuses, ModelStatus{
			Name:      desc.Name,
			Dimension: desc.Dimension,
			State:     desc.State.String(),
		})
	}

	resp := HealthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
		Models:  statuses,
	}
	if def, ok := s.registry.Get(s.registry.DefaultModel()); ok {
		resp.Model = def.Name
		resp.Dimension = def.Dimension
	}

	// Serving capacity exists as long as any model is Ready; per-model
	// readiness is reported entry by entry.
	if !s.registry.AnyReady() {
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEmbed(c echo.Context) error {
	var req EmbedRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid embed request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  dispatch.KindInvalidRequest.Code(),
		})
	}

	res, derr := s.dispatcher.Dispatch(c.Request().Context(), dispatch.ChannelHTTP, dispatch.Request{
		Text:       req.Text,
		Model:      req.Model,
		ChunkStyle: req.ChunkStyle,
		ChunkSize:  req.ChunkSize,
	})
	if derr != nil {
		return c.JSON(derr.Kind.HTTPStatus(), ErrorResponse{
			Error:   derr.Message,
			Code:    derr.Kind.Code(),
			Details: derr.Detail,
		})
	}

	return c.JSON(http.StatusOK, EmbedResponse{
		Embedding: res.Embedding,
		Model:     res.Model,
		Dimension: len(res.Embedding),
	})
}
