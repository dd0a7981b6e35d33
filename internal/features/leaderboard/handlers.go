package leaderboard

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
	r.Get("/leaderboard", h.handleLeaderboard)
	r.Get("/users/{userID}/rank", h.handleRank)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := common.ParseLimit(r.URL.Query().Get("limit"), DefaultLimit)
	if err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	entries, err := h.service.GetLeaderboard(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleRank(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.GetRankProgress(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, p)
}
