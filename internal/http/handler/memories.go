package handler

import (
	"fmt"
	"net/http"

	"memorymap/internal/auth"
	"memorymap/internal/memory"
	"memorymap/internal/metrics"

	"go.uber.org/zap"
)

type MemoryHandler struct {
	Svc *memory.Service
	Log *zap.Logger
}

type saveMemoryResp struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	MemoryID string `json:"memoryId"`
}

type deleteMemoryReq struct {
	ID string `json:"id"`
}

type deleteMemoryResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *MemoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UIDFromContext(r.Context())
	// authorization outranks input errors so clients know to re-authorize
	if err := h.Svc.RequirePoster(r.Context(), uid); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}

	var req memory.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err, "Missing memory data.")
		return
	}

	id, err := h.Svc.Create(r.Context(), uid, req)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	metrics.MemoriesCreated.Inc()
	h.Log.Info("memory created", zap.String("id", id), zap.String("contributor", uid))
	writeJSON(w, http.StatusOK, saveMemoryResp{Success: true, Message: "Memory successfully saved.", MemoryID: id})
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UIDFromContext(r.Context())
	if err := h.Svc.RequirePoster(r.Context(), uid); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}

	var req deleteMemoryReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err, "Missing memory ID.")
		return
	}

	if err := h.Svc.Delete(r.Context(), uid, req.ID); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	metrics.MemoriesDeleted.Inc()
	h.Log.Info("memory deleted", zap.String("id", req.ID), zap.String("by", uid))
	writeJSON(w, http.StatusOK, deleteMemoryResp{Success: true, Message: fmt.Sprintf("Memory %s successfully deleted.", req.ID)})
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	if ms == nil {
		ms = []memory.Memory{}
	}
	writeJSON(w, http.StatusOK, ms)
}
