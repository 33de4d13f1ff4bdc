package handler

import (
	"encoding/json"
	"net/http"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
	"cratedrive/internal/service"
)

type BulkHandler struct {
	bulkService *service.BulkService
}

func NewBulkHandler(bulkService *service.BulkService) *BulkHandler {
	return &BulkHandler{bulkService: bulkService}
}

// Execute применяет одну операцию к смешанному набору файлов и папок.
func (h *BulkHandler) Execute(w http.ResponseWriter, r *http.Request) {
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

	var req domain.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	result, err := h.bulkService.Execute(r.Context(), crateID, userID, req)
	if err != nil {
		// Частично применённый набор не откатывается, клиент
		// получает и результат, и ошибку
		status := statusOf(err)
		writeJSON(w, status, struct {
			*domain.BulkResult
			Error string `json:"error"`
		}{BulkResult: result, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
