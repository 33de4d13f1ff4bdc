package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/service"
)

type FolderHandler struct {
	folderService *service.FolderService
}

func NewFolderHandler(folderService *service.FolderService) *FolderHandler {
	return &FolderHandler{folderService: folderService}
}

func folderIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "folderID"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid folder id")
	}
	return id, nil
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

type createFolderRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	folder, err := h.folderService.Create(r.Context(), crateID, userID, req.Name, req.Color, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, folder)
}

// GetContents отдаёт содержимое папки; без folderID — корень крейта.
func (h *FolderHandler) GetContents(w http.ResponseWriter, r *http.Request) {
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

	var folderID *int64
	if s := chi.URLParam(r, "folderID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, apperr.Validation("invalid folder id"))
			return
		}
		folderID = &id
	}

	page, pageSize := pageParams(r)
	search := r.URL.Query().Get("search")

	content, err := h.folderService.GetContents(r.Context(), crateID, userID, folderID, search, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *FolderHandler) Rename(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.folderService.Rename(r.Context(), crateID, userID, folderID, req.Name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

type recolorRequest struct {
	Color string `json:"color"`
}

func (h *FolderHandler) Recolor(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req recolorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.folderService.Recolor(r.Context(), crateID, userID, folderID, req.Color); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type moveFolderRequest struct {
	TargetFolderID *int64 `json:"target_folder_id,omitempty"`
}

func (h *FolderHandler) Move(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req moveFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.folderService.Move(r.Context(), crateID, userID, folderID, req.TargetFolderID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.folderService.SoftDelete(r.Context(), crateID, userID, folderID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *FolderHandler) Restore(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.folderService.Restore(r.Context(), crateID, userID, folderID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// DeletePermanently удаляет папку навсегда; ?recursive=true разрешает
// удаление непустой папки вместе с содержимым.
func (h *FolderHandler) DeletePermanently(w http.ResponseWriter, r *http.Request) {
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
	folderID, err := folderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	recursive := r.URL.Query().Get("recursive") == "true"

	if err := h.folderService.PermanentlyDelete(r.Context(), crateID, userID, folderID, recursive); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
