package handler

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"cratedrive/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("Failed to encode response: %v", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError переводит типизированную ошибку в HTTP-статус.
// Соответствие задаётся здесь один раз; ожидаемые бизнес-отказы
// в лог ошибок не попадают.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := statusOf(err)

	message := err.Error()
	if !apperr.Expected(err) {
		log.Printf("Request failed: %v", err)
		message = "internal error"
	}

	writeJSON(w, status, errorResponse{Error: message, Code: string(code)})
}

// statusOf — единственное место соответствия кодов ошибок HTTP-статусам.
func statusOf(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidMove, apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
