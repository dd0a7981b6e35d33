package staking

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"serotonyl.ru/reputation-ledger/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/stakes", h.handleCreate)
	r.Get("/stakes/{stakeID}", h.handleGet)
	r.Post("/stakes/{stakeID}/settle", h.handleSettle)
	r.Get("/users/{userID}/stakes", h.handleList)
}

type settleRequest struct {
	Outcome Outcome `json:"outcome"`
}

func stakeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "stakeID"))
	if err != nil {
		common.BadRequest(w, "invalid stake id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	st, err := h.service.CreateStake(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/stakes/"+st.ID.String())
	common.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := stakeID(w, r)
	if !ok {
		return
	}
	st, err := h.service.GetStake(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, st)
}

// handleSettle is the explicit settlement event. Repeating it returns the
// terminal stake with 200.
func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, ok := stakeID(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	st, err := h.service.SettleStake(r.Context(), id, req.Outcome)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	list, err := h.service.ListStakes(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*Stake{}
	}
	common.WriteJSON(w, http.StatusOK, list)
}
