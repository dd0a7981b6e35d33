package ledger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/reputation-ledger/internal/common"
)

// Handler exposes score queries and the inbound event endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates the ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/scores/{userID}", h.handleGetScore)
	r.Get("/scores/{userID}/transactions", h.handleListTransactions)
	r.Get("/scores/{userID}/audit", h.handleAudit)

	r.Route("/events", func(r chi.Router) {
		r.Post("/user-registered", h.handleUserRegistered)
		r.Post("/match-outcome", h.handleMatchOutcome)
		r.Post("/contribution", h.handleContribution)
		r.Post("/peer-review", h.handlePeerReview)
		r.Post("/governance-vote", h.handleGovernanceVote)
		r.Post("/penalty", h.handlePenalty)
	})
}

func (h *Handler) handleGetScore(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	score, err := h.service.GetScore(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, score)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit, err := common.ParseLimit(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	page, err := h.service.ListTransactions(r.Context(), userID, Page{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	userID, err := common.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	audit, err := h.service.Audit(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, audit)
}

func (h *Handler) handleUserRegistered(w http.ResponseWriter, r *http.Request) {
	var ev UserRegistered
	if err := common.DecodeJSON(r, &ev); err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	score, err := h.service.RegisterUser(r.Context(), ev)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/scores/"+strconv.FormatInt(score.UserID, 10))
	common.WriteJSON(w, http.StatusCreated, score)
}

// decodeAndAppend is shared by the event endpoints that produce one transaction.
func decodeAndAppend[E any](w http.ResponseWriter, r *http.Request, apply func(*http.Request, E) (*Transaction, error)) {
	var ev E
	if err := common.DecodeJSON(r, &ev); err != nil {
		common.BadRequest(w, err.Error())
		return
	}
	tx, err := apply(r, ev)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, tx)
}

func (h *Handler) handleMatchOutcome(w http.ResponseWriter, r *http.Request) {
	decodeAndAppend(w, r, func(r *http.Request, ev MatchOutcome) (*Transaction, error) {
		return h.service.RecordMatchOutcome(r.Context(), ev)
	})
}

func (h *Handler) handleContribution(w http.ResponseWriter, r *http.Request) {
	decodeAndAppend(w, r, func(r *http.Request, ev ContributionRecorded) (*Transaction, error) {
		return h.service.RecordContribution(r.Context(), ev)
	})
}

func (h *Handler) handlePeerReview(w http.ResponseWriter, r *http.Request) {
	decodeAndAppend(w, r, func(r *http.Request, ev PeerReviewSubmitted) (*Transaction, error) {
		return h.service.RecordPeerReview(r.Context(), ev)
	})
}

func (h *Handler) handleGovernanceVote(w http.ResponseWriter, r *http.Request) {
	decodeAndAppend(w, r, func(r *http.Request, ev GovernanceVoteCast) (*Transaction, error) {
		return h.service.RecordGovernanceVote(r.Context(), ev)
	})
}

func (h *Handler) handlePenalty(w http.ResponseWriter, r *http.Request) {
	decodeAndAppend(w, r, func(r *http.Request, ev AdminPenalty) (*Transaction, error) {
		return h.service.ApplyPenalty(r.Context(), ev)
	})
}
