package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type httpError struct {
	status int
	code   string
}

var errorTable = []struct {
	err error
	httpError
}{
	{ErrUserNotFound, httpError{http.StatusNotFound, "user_not_found"}},
	{ErrNotFound, httpError{http.StatusNotFound, "not_found"}},
	{ErrUnknownTransactionType, httpError{http.StatusBadRequest, "unknown_transaction_type"}},
	{ErrInvalidAmount, httpError{http.StatusBadRequest, "invalid_amount"}},
	{ErrUnknownCategory, httpError{http.StatusBadRequest, "unknown_category"}},
	{ErrInvalidUserID, httpError{http.StatusBadRequest, "invalid_user_id"}},
	{ErrInvalidCursor, httpError{http.StatusBadRequest, "invalid_cursor"}},
	{ErrSelfEndorsementNotAllowed, httpError{http.StatusBadRequest, "self_endorsement_not_allowed"}},
	{ErrInvalidLevel, httpError{http.StatusBadRequest, "invalid_level"}},
	{ErrInvalidSkill, httpError{http.StatusBadRequest, "invalid_skill"}},
	{ErrDuplicateEndorsement, httpError{http.StatusConflict, "duplicate_endorsement"}},
	{ErrRefConflict, httpError{http.StatusConflict, "ref_conflict"}},
	{ErrStakeExceedsCap, httpError{http.StatusUnprocessableEntity, "stake_exceeds_cap"}},
	{ErrInvalidDuration, httpError{http.StatusBadRequest, "invalid_duration"}},
	{ErrUnknownStakeType, httpError{http.StatusBadRequest, "unknown_stake_type"}},
	{ErrUnknownOutcome, httpError{http.StatusBadRequest, "unknown_outcome"}},
	{ErrConcurrencyExhausted, httpError{http.StatusConflict, "concurrency_exhausted"}},
	{ErrVersionConflict, httpError{http.StatusConflict, "version_conflict"}},
	{ErrUnavailable, httpError{http.StatusServiceUnavailable, "unavailable"}},
	{context.DeadlineExceeded, httpError{http.StatusGatewayTimeout, "timeout"}},
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// WriteError maps err onto a status code. Unknown errors become 500 and are
// logged, without leaking their text to the client.
func WriteError(w http.ResponseWriter, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			WriteJSON(w, e.status, ErrorResponse{Error: e.code, Message: err.Error()})
			return
		}
	}
	log.WithError(err).Error("Unhandled request error")
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal error"})
}

// BadRequest writes a 400 with a free-form message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: msg})
}

// DecodeJSON reads a JSON body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ParseUserID parses a positive user id from a path or query value.
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// ParseLimit reads an optional positive integer, falling back to def.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return n, nil
}
