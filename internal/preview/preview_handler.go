package preview

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cratedrive/internal/auth"
	"cratedrive/internal/service"
)

type Handler struct {
	previews    *Service
	fileService *service.FileService
}

func NewHandler(previews *Service, fileService *service.FileService) *Handler {
	return &Handler{previews: previews, fileService: fileService}
}

// GetPreview отдаёт JPEG-превью файла изображения.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	crateID, err := strconv.ParseInt(chi.URLParam(r, "crateID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid crate id", http.StatusBadRequest)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		http.Error(w, "Invalid file id", http.StatusBadRequest)
		return
	}

	obj, file, err := h.fileService.Download(r.Context(), crateID, userID, fileID)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer obj.Close()

	data, err := h.previews.GetOrGenerate(r.Context(), crateID, fileID.String(), file.MIMEType, obj)
	if err != nil {
		log.Printf("Failed to build preview for %s: %v", fileID, err)
		http.Error(w, "Failed to generate preview", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write preview response: %v", err)
	}
}
