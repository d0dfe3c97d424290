package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/dispatch"
	"github.com/fyrsmithlabs/embedd/internal/engine"
	"github.com/fyrsmithlabs/embedd/internal/governor"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

func testServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	models := []engine.Model{
		{Name: "small", Dimension: 384, MaxSequenceLength: 512},
		{Name: "base", Dimension: 768, MaxSequenceLength: 512},
	}
	eng := engine.NewStatic(models)

	reg := registry.New("small")
	for _, m := range models {
		reg.Add(registry.Descriptor{Name: m.Name, Dimension: m.Dimension, MaxSequenceLength: m.MaxSequenceLength})
		reg.MarkReady(m.Name)
	}

	d := dispatch.New(dispatch.Config{
		MaxTextLength:  8192,
		RequestTimeout: 5 * time.Second,
	}, reg, eng, governor.New(0, 0), zap.NewNop())

	return New(Config{Bind: "127.0.0.1:0", Version: "test"}, d, reg, zap.NewNop()), reg
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestEmbedSuccess(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/embed", `{"text":"hello world"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EmbedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "small", resp.Model)
	assert.Equal(t, 384, resp.Dimension)
	assert.Len(t, resp.Embedding, 384)
}

func TestEmbedNamedModel(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/embed", `{"text":"hello","model":"base"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EmbedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "base", resp.Model)
	assert.Len(t, resp.Embedding, 768)
}

func TestEmbedErrorStatuses(t *testing.T) {
	s, _ := testServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty text", `{"text":""}`, http.StatusBadRequest, "EMPTY_TEXT"},
		{"text too long", `{"text":"` + strings.Repeat("x", 9000) + `"}`, http.StatusBadRequest, "TEXT_TOO_LONG"},
		{"unknown model", `{"text":"hi","model":"no-such-model"}`, http.StatusNotFound, "UNKNOWN_MODEL"},
		{"malformed json", `{"text":`, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/embed", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestModelNotReadyStatus(t *testing.T) {
	s, reg := testServer(t)
	reg.Add(registry.Descriptor{Name: "slow-loader", Dimension: 384})

	rec := doJSON(t, s, http.MethodPost, "/embed", `{"text":"hi","model":"slow-loader"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MODEL_NOT_READY", resp.Code)
}

func TestHealthReady(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "small", resp.Model)
	assert.Equal(t, 384, resp.Dimension)
	assert.Equal(t, "test", resp.Version)
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "ready", resp.Models[0].State)
}

func TestHealthUnavailableWhileLoading(t *testing.T) {
	models := []engine.Model{{Name: "small", Dimension: 384}}
	eng := engine.NewStatic(models)

	reg := registry.New("small")
	reg.Add(registry.Descriptor{Name: "small", Dimension: 384})
	// Still loading: no MarkReady.

	d := dispatch.New(dispatch.Config{MaxTextLength: 8192},
		reg, eng, governor.New(0, 0), zap.NewNop())
	s := New(Config{Version: "test"}, d, reg, zap.NewNop())

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "loading", resp.Models[0].State)
}

func TestRootMetadata(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "embedd", resp.Service)
	assert.Equal(t, "test", resp.Version)
	assert.Contains(t, resp.Endpoints, "POST /embed")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)

	// Generate at least one observation so the exposition is non-trivial.
	doJSON(t, s, http.MethodPost, "/embed", `{"text":"hello"}`)

	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "embedd_requests_total")
}

func TestEngineErrorHidesDetail(t *testing.T) {
	models := []engine.Model{{Name: "small", Dimension: 384}}
	eng := engine.NewStatic(models)
	eng.Fail = assert.AnError

	reg := registry.New("small")
	reg.Add(registry.Descriptor{Name: "small", Dimension: 384})
	reg.MarkReady("small")

	d := dispatch.New(dispatch.Config{MaxTextLength: 8192, RequestTimeout: time.Second},
		reg, eng, governor.New(0, 0), zap.NewNop())
	s := New(Config{Version: "test"}, d, reg, zap.NewNop())

	rec := doJSON(t, s, http.MethodPost, "/embed", `{"text":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
