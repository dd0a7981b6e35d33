package endorsement

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
	r.Post("/endorsements", h.handleCreate)
	r.Get("/users/{userID}/endorsements", h.handleList)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	e, err := h.service.CreateEndorsement(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, e)
}

// handleList returns received endorsements, or given ones with ?direction=given.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}

	var list []*Endorsement
	switch r.URL.Query().Get("direction") {
	case "", "received":
		list, err = h.service.ListReceived(r.Context(), userID)
	case "given":
		list, err = h.service.ListGiven(r.Context(), userID)
	default:
		common.BadRequest(w, "direction must be received or given")
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*Endorsement{}
	}
	common.WriteJSON(w, http.StatusOK, list)
}
