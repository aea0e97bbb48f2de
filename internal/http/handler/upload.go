package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"memorymap/internal/auth"
	"memorymap/internal/blob"
	"memorymap/internal/memory"
	"memorymap/internal/metrics"

	"go.uber.org/zap"
)

const DefaultUploadMaxBytes = 10 << 20

type UploadHandler struct {
	Svc      *memory.Service
	Blobs    blob.Store // nil disables uploads
	AppID    string
	MaxBytes int64
	Now      func() time.Time
	Log      *zap.Logger
}

type uploadResp struct {
	URL string `json:"url"`
}

// Upload stores one photo from the multipart field "file". The optional
// "name" field overrides the client file name used in the object key.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Blobs == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Photo uploads are not configured.")
		return
	}
	uid, _ := auth.UIDFromContext(r.Context())
	if err := h.Svc.RequirePoster(r.Context(), uid); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultUploadMaxBytes
	}
	if r.ContentLength > limit {
		metrics.Uploads.WithLabelValues("too_large").Inc()
		writeMessage(w, http.StatusRequestEntityTooLarge, "Photo is too large.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.Uploads.WithLabelValues("too_large").Inc()
			writeMessage(w, http.StatusRequestEntityTooLarge, "Photo is too large.")
			return
		}
		writeMessage(w, http.StatusBadRequest, "Missing file field.")
		return
	}
	defer file.Close()

	contentType := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeMessage(w, http.StatusBadRequest, "Only image uploads are accepted.")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = hdr.Filename
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	key := blob.ObjectKey(h.AppID, uid, name, now())
	url, err := h.Blobs.Upload(r.Context(), file, hdr.Size, contentType, key)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		h.Log.Error("upload photo", zap.String("key", key), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to store photo.")
		return
	}
	metrics.Uploads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, uploadResp{URL: url})
}
