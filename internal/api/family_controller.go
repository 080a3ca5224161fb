package api

import (
	"fmt"
	"net/http"

	"family-planner/internal/model"
	"family-planner/internal/service"
)

// FamilyController handles family membership for this device.
type FamilyController struct {
	Service *service.FamilyService
}

func NewFamilyController(svc *service.FamilyService) *FamilyController {
	return &FamilyController{Service: svc}
}

type createFamilyRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	TelegramID  int64  `json:"telegramId"`
	DisplayName string `json:"displayName" validate:"max=64"`
}

type joinFamilyRequest struct {
	InviteCode  string `json:"inviteCode" validate:"notblank,max=16"`
	TelegramID  int64  `json:"telegramId"`
	DisplayName string `json:"displayName" validate:"max=64"`
	Role        string `json:"role" validate:"omitempty,oneof=parent child"`
}

// Current handles GET /family.
func (c *FamilyController) Current(w http.ResponseWriter, r *http.Request) {
	state, ok := c.Service.Current()
	if !ok {
		writeError(w, fmt.Errorf("family: %w", model.ErrNoFamily))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Create handles POST /family.
func (c *FamilyController) Create(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := c.Service.CreateFamily(r.Context(), req.Name, req.TelegramID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// Join handles POST /family/join.
func (c *FamilyController) Join(w http.ResponseWriter, r *http.Request) {
	var req joinFamilyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := c.Service.JoinFamily(r.Context(), req.InviteCode, req.TelegramID, req.DisplayName, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Leave handles DELETE /family.
func (c *FamilyController) Leave(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.Leave(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /family/members.
func (c *FamilyController) Members(w http.ResponseWriter, r *http.Request) {
	members, err := c.Service.Members(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}
