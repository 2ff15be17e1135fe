// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	tglog "github.com/ManuGH/tgstream/internal/log"
)

// Recoverer turns a handler panic into a JSON 500 and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
				panic(rec)
			}

			logger := tglog.WithComponentFromContext(r.Context(), "http")
			logger.Error().
				Str(tglog.FieldEvent, "request.panic").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Msg("recovered from handler panic")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal","detail":"internal server error"}`))
		}()
		next.ServeHTTP(w, r)
	})
}
