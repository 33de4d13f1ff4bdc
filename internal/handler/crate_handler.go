package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cratedrive/internal/apperr"
	"cratedrive/internal/auth"
	"cratedrive/internal/domain"
	"cratedrive/internal/service"
)

type CrateHandler struct {
	crateService *service.CrateService
}

func NewCrateHandler(crateService *service.CrateService) *CrateHandler {
	return &CrateHandler{crateService: crateService}
}

func crateIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "crateID"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid crate id")
	}
	return id, nil
}

type createCrateRequest struct {
	Name           string `json:"name"`
	Color          string `json:"color"`
	AllocatedBytes int64  `json:"allocated_bytes"`
}

func (h *CrateHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createCrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	crate, err := h.crateService.Create(r.Context(), userID, req.Name, req.Color, req.AllocatedBytes)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, crate)
}

func (h *CrateHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	crates, err := h.crateService.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, crates)
}

func (h *CrateHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	crate, err := h.crateService.Get(r.Context(), crateID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, crate)
}

type updateCrateRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *CrateHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req updateCrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.crateService.UpdateMeta(r.Context(), crateID, userID, req.Name, req.Color); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type updateAllocationRequest struct {
	AllocatedBytes int64 `json:"allocated_bytes"`
}

func (h *CrateHandler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
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

	var req updateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.crateService.UpdateAllocation(r.Context(), crateID, userID, req.AllocatedBytes); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *CrateHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.crateService.ListMembers(r.Context(), crateID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *CrateHandler) AddMember(w http.ResponseWriter, r *http.Request) {
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

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, apperr.Validation("%v", err))
		return
	}

	if err := h.crateService.AddMember(r.Context(), crateID, userID, req.UserID, role); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (h *CrateHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
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

	memberID := chi.URLParam(r, "userID")

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, apperr.Validation("%v", err))
		return
	}

	if err := h.crateService.UpdateMemberRole(r.Context(), crateID, userID, memberID, role); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *CrateHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
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

	memberID := chi.URLParam(r, "userID")

	if err := h.crateService.RemoveMember(r.Context(), crateID, userID, memberID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
