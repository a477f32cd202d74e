package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lsmkv/pkg/config"
	"lsmkv/pkg/dberrors"
	"lsmkv/pkg/metrics"
	"lsmkv/pkg/sstable"
	"lsmkv/pkg/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = time.Second * 5

	defaultPerPage = 50
	maxPerPage     = 500

	metricRequests = "lsmkv_http_requests_total"
)

type iStore interface {
	Put(key, value string) error
	Get(key string) (string, bool, error)
	Stats() store.Stats
	Keys() ([]sstable.Entry, error)
}

// Server exposes a store over HTTP.
type Server struct {
	store      iStore
	metrics    *metrics.Registry
	cfg        config.ServerConfig
	httpServer *http.Server
	URL        string
}

// NewServer creates a new server instance. reg may be nil.
func NewServer(st iStore, cfg config.ServerConfig, reg *metrics.Registry) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = time.Second
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Server{
		store:   st,
		metrics: reg,
		cfg:     cfg,
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.URL = "http://" + ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/put", s.handlePut)
	r.Get("/get", s.handleGet)
	r.Get("/stats", s.handleStats)
	r.Get("/keys", s.handleKeys)

	return r
}

// observe logs every request and counts it per route and status code.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.IncCounter(metricRequests, map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   strconv.Itoa(status),
		}, 1)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dberrors.ErrInvalidArgument):
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
	case errors.Is(err, dberrors.ErrClosed):
		s.writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse(err.Error()))
	default:
		slog.Error("store operation failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse("internal server error"))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.metrics.WriteText(w); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

type putRequest struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = putRequest{}
	}

	key, okKey := toText(req.Key)
	value, okValue := toText(req.Value)
	if !okKey || !okValue {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("key and value are required"))
		return
	}

	if err := s.store.Put(key, value); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewPutResponse(key, value))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("key") {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("key is required"))
		return
	}
	key := r.URL.Query().Get("key")

	value, found, err := s.store.Get(key)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewGetResponse(key, value, found))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStatsResponse(s.store.Stats()))
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage := intParam(q.Get("per_page"), defaultPerPage)
	perPage = min(max(perPage, 1), maxPerPage)
	filter := q.Get("q")

	entries, err := s.store.Keys()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	matched := make([]KeyValue, 0, len(entries))
	for _, e := range entries {
		if filter == "" || strings.Contains(e.Key, filter) {
			matched = append(matched, KeyValue{Key: e.Key, Value: e.Value})
		}
	}

	start := len(matched)
	if page-1 <= len(matched)/perPage {
		start = min((page-1)*perPage, len(matched))
	}
	end := min(start+perPage, len(matched))

	s.writeJSON(w, http.StatusOK, KeysResponse{
		Keys:    matched[start:end],
		Page:    page,
		PerPage: perPage,
		Total:   len(matched),
	})
}

// toText turns a JSON scalar into the text stored by the engine: strings are
// taken as is, anything else keeps its compact JSON spelling. Absent and null
// values are reported as missing.
func toText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
