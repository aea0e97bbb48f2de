package handler

import (
	"net/http"

	"memorymap/internal/auth"

	"go.uber.org/zap"
)

type SessionHandler struct {
	JWT *auth.JWT
	Log *zap.Logger
}

type sessionResp struct {
	UID       string `json:"uid"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // ms since epoch
}

// Create issues an anonymous session. It identifies contributions only and
// grants nothing until the session passes /authorize.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid := auth.NewSessionID()
	token, exp, err := h.JWT.Sign(uid)
	if err != nil {
		h.Log.Error("sign session", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to start session.")
		return
	}
	writeJSON(w, http.StatusOK, sessionResp{UID: uid, Token: token, ExpiresAt: exp.UnixMilli()})
}
