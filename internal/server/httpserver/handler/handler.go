package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Node is the read-only view of the running node.
type Node interface {
	NodeID() string
	Mode() string
	StoreAddress() string
	State() lifecycle.State
	Peers() int
	ContentAddress() (domain.ContentAddress, error)
}

// KV is the attached store as seen by the API.
type KV interface {
	Get(key string) (string, bool)
	All() domain.Snapshot
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StoreFunc returns the attached store, or domain.ErrNotAttached.
type StoreFunc func() (KV, error)

// Handler serves the node API.
type Handler struct {
	node    Node
	store   StoreFunc
	version string
	logger  logger.Logger
	mux     *http.ServeMux
}

// New creates a Handler.
func New(node Node, store StoreFunc, version string, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	h := &Handler{
		node:    node,
		store:   store,
		version: version,
		logger:  log,
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /v1/status", h.handleStatus)
	h.mux.HandleFunc("GET /v1/kv", h.handleList)
	h.mux.HandleFunc("GET /v1/kv/{key}", h.handleGet)
	h.mux.HandleFunc("PUT /v1/kv/{key}", h.handlePut)
	h.mux.HandleFunc("DELETE /v1/kv/{key}", h.handleDelete)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.WithContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(getRequestID(r), code, message))
}

// handleError maps domain errors onto HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if code := domain.GetErrorCode(err); code != "" {
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}
	h.logger.WithContext(r.Context()).Error("internal error", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "MK-SYS-5000", "internal server error")
}

func errorCodeToHTTPStatus(code string) int {
	switch {
	case code == domain.ErrNotAttached.Code:
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4000"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4100"):
		return http.StatusGone
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
