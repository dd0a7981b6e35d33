package achievement

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/reputation-ledger/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/achievements", h.handleCatalog)
	r.Get("/users/{userID}/achievements", h.handleUserAchievements)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.service.Catalog())
}

func (h *Handler) handleUserAchievements(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	list, err := h.service.UserAchievements(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}
