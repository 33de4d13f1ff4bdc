package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
	"cratedrive/internal/service"
)

type FileHandler struct {
	fileService *service.FileService
}

func NewFileHandler(fileService *service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

func fileIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid file id")
	}
	return id, nil
}

// Upload принимает multipart-форму с полем file и опциональным
// folder_id. Пустой folder_id кладёт файл в корень крейта.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(service.MaxFileSize); err != nil {
		writeError(w, apperr.Validation("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validation("file field is required"))
		return
	}
	defer file.Close()

	var folderID *int64
	if s := r.FormValue("folder_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, apperr.Validation("invalid folder id"))
			return
		}
		folderID = &id
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	upload := domain.FileUpload{
		CrateID:  crateID,
		FolderID: folderID,
		Name:     header.Filename,
		MIMEType: mimeType,
		Size:     header.Size,
	}

	created, err := h.fileService.Upload(r.Context(), userID, upload, file)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("File %s uploaded to crate %d by %s", created.UUID, crateID, userID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	file, err := h.fileService.Get(r.Context(), crateID, userID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, file)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	obj, file, err := h.fileService.Download(r.Context(), crateID, userID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength(), 10))

	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("Failed to stream file %s: %v", fileID, err)
	}
}

func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.fileService.Rename(r.Context(), crateID, userID, fileID, req.Name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req moveFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.fileService.Move(r.Context(), crateID, userID, fileID, req.TargetFolderID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.fileService.SoftDelete(r.Context(), crateID, userID, fileID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *FileHandler) Restore(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.fileService.Restore(r.Context(), crateID, userID, fileID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *FileHandler) DeletePermanently(w http.ResponseWriter, r *http.Request) {
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
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.fileService.PermanentlyDelete(r.Context(), crateID, userID, fileID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// MimeBreakdown — раскладка использования крейта по категориям MIME.
func (h *FileHandler) MimeBreakdown(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.fileService.MimeBreakdown(r.Context(), crateID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
