package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/yndnr/meshkv/internal/core/domain"
)

const maxPutBody = 1 << 20

// handleList handles GET /v1/kv.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	st, err := h.store()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	snap := st.All()
	h.writeJSON(w, r, http.StatusOK, KVResponse{Count: len(snap), Entries: snap})
}

// handleGet handles GET /v1/kv/{key}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.store()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	key := r.PathValue("key")
	value, ok := st.Get(key)
	if !ok {
		h.handleError(w, r, domain.ErrKeyNotFound.WithDetails(key))
		return
	}
	h.writeJSON(w, r, http.StatusOK, EntryResponse{Key: key, Value: value})
}

// handlePut handles PUT /v1/kv/{key}.
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	st, err := h.store()
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req PutRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPutBody))
	if err != nil {
		h.handleError(w, r, domain.ErrInvalidRequest.WithCause(err))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		h.handleError(w, r, domain.ErrInvalidRequest.WithDetails("body must be {\"value\": string}"))
		return
	}

	key := r.PathValue("key")
	if err := st.Put(r.Context(), key, req.Value); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, EntryResponse{Key: key, Value: req.Value})
}

// handleDelete handles DELETE /v1/kv/{key}.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	st, err := h.store()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := st.Delete(r.Context(), r.PathValue("key")); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
