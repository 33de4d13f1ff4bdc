package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/service"
)

type TrashHandler struct {
	trashService *service.TrashService
}

func NewTrashHandler(trashService *service.TrashService) *TrashHandler {
	return &TrashHandler{trashService: trashService}
}

func (h *TrashHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	crateID, err := crateIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, pageSize := pageParams(r)

	trash, err := h.trashService.List(r.Context(), crateID, userID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trash)
}

type trashItemsRequest struct {
	FolderIDs []int64     `json:"folder_ids"`
	FileIDs   []uuid.UUID `json:"file_ids"`
}

func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	crateID, err := crateIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req trashItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.trashService.Restore(r.Context(), crateID, userID, req.FolderIDs, req.FileIDs); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *TrashHandler) DeletePermanently(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	crateID, err := crateIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req trashItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.trashService.DeletePermanently(r.Context(), crateID, userID, req.FolderIDs, req.FileIDs); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
