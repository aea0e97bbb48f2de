package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"memorymap/internal/auth"
	"memorymap/internal/memory"
	"memorymap/internal/metrics"

	"go.uber.org/zap"
)

type AuthorizeHandler struct {
	Svc *memory.Service
	Log *zap.Logger
}

type authorizeReq struct {
	Key json.RawMessage `json:"key"`
}

type authorizeResp struct {
	Authorized bool   `json:"authorized"`
	Message    string `json:"message"`
}

func (h *AuthorizeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err, "Missing authorization key in request body.")
		return
	}
	if len(req.Key) == 0 || bytes.Equal(req.Key, []byte("null")) {
		writeMessage(w, http.StatusBadRequest, "Missing authorization key in request body.")
		return
	}
	// a key that is not a JSON string never matches
	var key string
	_ = json.Unmarshal(req.Key, &key)

	uid, _ := auth.UIDFromContext(r.Context())
	err := h.Svc.Authorize(r.Context(), uid, key)
	switch {
	case err == nil:
		metrics.AuthorizeAttempts.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, authorizeResp{Authorized: true, Message: "Authorization successful."})
	case errors.Is(err, memory.ErrUnauthorized):
		metrics.AuthorizeAttempts.WithLabelValues("denied").Inc()
		writeJSON(w, http.StatusUnauthorized, authorizeResp{Authorized: false, Message: "Invalid authorization key."})
	case errors.Is(err, memory.ErrConfiguration):
		metrics.AuthorizeAttempts.WithLabelValues("error").Inc()
		h.Log.Error("POST_AUTHORIZATION_KEY is not set")
		writeMessage(w, http.StatusInternalServerError, "Server configuration error: Authorization key is missing.")
	default:
		metrics.AuthorizeAttempts.WithLabelValues("error").Inc()
		h.Log.Error("authorize", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to process authorization request.")
	}
}
