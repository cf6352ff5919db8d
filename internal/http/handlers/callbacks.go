package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genqueue/internal/orchestrator"
)

const maxCallbackBody = 1 << 20

// ProviderCallback accepts a provider's completion notice. It answers 200
// whatever happens so providers do not retry; problems are only logged.
func (a *App) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	log := a.logger.With().Str("provider", provider).Logger()

	if a.callbackSecret != "" {
		token := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.callbackSecret)) != 1 {
			log.Warn().Str("remote", r.RemoteAddr).Msg("callback with bad token ignored")
			a.json(w, http.StatusOK, orchestrator.Ack{Received: true, Status: orchestrator.AckIgnored})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		log.Warn().Err(err).Msg("read callback body")
		a.json(w, http.StatusOK, orchestrator.Ack{Received: true, Status: orchestrator.AckIgnored})
		return
	}
	ack := a.reconciler.HandleBody(r.Context(), provider, body)
	a.json(w, http.StatusOK, ack)
}

// CallbackProbe lets providers verify the callback URL is reachable.
func (a *App) CallbackProbe(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
