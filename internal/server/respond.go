package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatapp-client/internal/apperr"
)

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.sugar.Error(err)
	}
}

// writeError maps the store's sentinel errors onto status codes.
// Anything unrecognized is treated as a bad request when it carries a
// short code from the input validators, never leaking internals.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, "", http.StatusNotFound)
	case errors.Is(err, apperr.ErrNotAuthenticated):
		http.Error(w, "", http.StatusUnauthorized)
	case errors.Is(err, apperr.ErrPermissionDenied):
		http.Error(w, "", http.StatusForbidden)
	case errors.Is(err, apperr.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, apperr.ErrExpired), errors.Is(err, apperr.ErrExhausted):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, apperr.ErrTransient):
		http.Error(w, "", http.StatusServiceUnavailable)
	default:
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}

// writeValidationError is for errors produced by input validation before
// anything was written.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	h.sugar.Debug(err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return false
	}
	return true
}

// userID reads the authenticated user set by UserVerifier.
func userID(r *http.Request) int64 {
	return r.Context().Value(userIDKeyType{}).(int64)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
