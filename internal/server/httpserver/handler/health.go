package handler

import (
	"net/http"

	"github.com/yndnr/meshkv/internal/core/lifecycle"
)

// handleHealth handles GET /healthz.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.node.State()
	if state == lifecycle.StateFailed || state == lifecycle.StateStopped {
		h.writeJSON(w, r, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", State: state.String()})
		return
	}
	h.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "healthy", State: state.String()})
}

// handleStatus handles GET /v1/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		NodeID:       h.node.NodeID(),
		Mode:         h.node.Mode(),
		State:        h.node.State().String(),
		Peers:        h.node.Peers(),
		StoreAddress: h.node.StoreAddress(),
		Version:      h.version,
	}
	if addr, err := h.node.ContentAddress(); err == nil {
		resp.ContentAddress = addr.String()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}
