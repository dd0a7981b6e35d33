package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/common"
)

// Recoverer turns a handler panic into a logged 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithFields(log.Fields{
				"component": "panic_recovery",
				"panic":     fmt.Sprintf("%v", rec),
				"method":    r.Method,
				"path":      r.URL.Path,
				"stack":     string(debug.Stack()),
			}).Error("Panic in handler recovered")
			common.WriteJSON(w, http.StatusInternalServerError, common.ErrorResponse{
				Error:   "internal",
				Message: "internal error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}
