package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nido/internal/adapters/presence/redispresence"
	"nido/internal/middleware"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

func registerPresenceRoutes(r chi.Router, tracker *redispresence.Tracker, st store.Store) {
	r.Route("/presence", func(pr chi.Router) {
		pr.Post("/heartbeat", heartbeatHandler(tracker))
		pr.Post("/offline", offlineHandler(tracker))
		pr.Get("/{userID}", getPresenceHandler(st))
	})
}

type heartbeatRequest struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

func heartbeatHandler(tracker *redispresence.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if tracker == nil {
			http.Error(w, "presence not configured", http.StatusServiceUnavailable)
			return
		}

		var req heartbeatRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		if err := tracker.Heartbeat(r.Context(), claims.UserID, req.Platform, req.Version); err != nil {
			http.Error(w, "presence backend error", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func offlineHandler(tracker *redispresence.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if tracker == nil {
			http.Error(w, "presence not configured", http.StatusServiceUnavailable)
			return
		}

		if err := tracker.SetOffline(r.Context(), claims.UserID); err != nil {
			http.Error(w, "presence backend error", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// getPresenceHandler lee el espejo del store, no Redis: es lo que ven los
// clientes realtime.
func getPresenceHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		v, err := st.Get(r.Context(), schema.PresencePath(chi.URLParam(r, "userID")))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if v == nil {
			http.Error(w, "no presence recorded", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
