package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"memorymap/internal/memory"

	"go.uber.org/zap"
)

// MaxJSONBytes caps the body of the JSON endpoints.
const MaxJSONBytes = 64 << 10

var (
	errMissingBody  = errors.New("missing body")
	errBodyTooLarge = errors.New("body too large")
)

type messageResp struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResp{Message: msg})
}

// MethodNotAllowed answers every route that only accepts POST.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed. Use POST.")
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusNotFound, "Not found.")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errMissingBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return errMissingBody
		}
		return err
	}
	return nil
}

// writeDecodeError answers 413 for oversized bodies and 400 with msg otherwise.
func writeDecodeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, errBodyTooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return
	}
	writeMessage(w, http.StatusBadRequest, msg)
}

// writeServiceError maps the memory error taxonomy onto status codes.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, memory.ErrValidation):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized: a valid session is required.")
	case errors.Is(err, memory.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Forbidden: this session has not been authorized to post.")
	case errors.Is(err, memory.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, memory.ErrConfiguration):
		log.Error("server misconfigured", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Server configuration error.")
	default:
		log.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
	}
}
