package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genqueue/internal/exchange"
)

// ExchangeFetch serves bytes held in the ephemeral exchange. Unknown and
// expired tokens look the same.
func (a *App) ExchangeFetch(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	entry, err := a.exchange.Get(r.Context(), token)
	if err != nil {
		if !errors.Is(err, exchange.ErrNotFound) {
			a.logger.Error().Err(err).Msg("exchange lookup failed")
		}
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(entry.Data)
}
