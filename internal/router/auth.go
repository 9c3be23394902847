package router

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nido/internal/adapters/identity/local"
	"nido/internal/domain/profile"
	"nido/internal/domain/session"
	"nido/internal/errs"
	"nido/internal/platform/logger"
)

func registerAuthRoutes(r chi.Router, b *local.Backend, sess *session.Controller, log logger.Logger) {
	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/signup", signUpHandler(b, log))
		ar.Post("/signin", signInHandler(b, log))
		ar.Post("/signout", signOutHandler(b))
		ar.Get("/session", sessionStateHandler(sess))
	})
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	// Solo teacher y parent se registran por acá; managers se dan de alta
	// por otro canal.
	Role       string `json:"role"`
	FacilityID string `json:"facilityId"`
	IsPayer    bool   `json:"isPayer"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

func signUpHandler(b *local.Backend, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		base := profile.NewBase(req.Email, req.DisplayName, req.FacilityID, time.Now())

		var p profile.Profile
		switch profile.Role(strings.TrimSpace(req.Role)) {
		case profile.RoleTeacher:
			p = profile.NewTeacher(base)
		case profile.RoleParent:
			parent := profile.NewParent(base)
			parent.IsPayer = req.IsPayer
			p = parent
		default:
			http.Error(w, "role must be teacher or parent", http.StatusBadRequest)
			return
		}

		if nerr := b.SignUp(r.Context(), req.Email, req.Password, p); nerr != nil {
			writeAuthError(w, nerr)
			return
		}

		uid, _ := b.UIDByEmail(req.Email)
		token, err := b.IssueToken(r.Context(), uid)
		if err != nil {
			log.Error("token issue failed after sign-up", map[string]any{"error": err.Error()})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Info("account created", map[string]any{"uid": uid, "role": req.Role})
		writeJSON(w, http.StatusCreated, sessionResponse{UID: uid, Token: token})
	}
}

func signInHandler(b *local.Backend, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if nerr := b.SignIn(r.Context(), req.Email, req.Password); nerr != nil {
			writeAuthError(w, nerr)
			return
		}

		uid, _ := b.UIDByEmail(req.Email)
		token, err := b.IssueToken(r.Context(), uid)
		if err != nil {
			log.Error("token issue failed after sign-in", map[string]any{"error": err.Error()})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse{UID: uid, Token: token})
	}
}

func signOutHandler(b *local.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if nerr := b.SignOut(r.Context()); nerr != nil {
			writeAuthError(w, nerr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionStateResponse struct {
	Status      string              `json:"status"`
	UID         string              `json:"uid,omitempty"`
	Email       string              `json:"email,omitempty"`
	Role        string              `json:"role,omitempty"`
	Permissions profile.Permissions `json:"permissions"`
	IsLoading   bool                `json:"isLoading"`
	Error       *sessionStateError  `json:"error,omitempty"`
}

type sessionStateError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// sessionStateHandler expone el snapshot del dueño del estado de sesión del
// proceso: quién está logueado, con qué permisos y en qué fase.
func sessionStateHandler(sess *session.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := sess.Snapshot()

		resp := sessionStateResponse{
			Status:      string(snap.Status),
			Permissions: snap.Permissions,
			IsLoading:   snap.IsLoading,
		}
		if snap.User != nil {
			resp.UID = snap.User.UID
			resp.Email = snap.User.Email
		}
		if snap.Profile != nil {
			resp.Role = string(snap.Profile.ProfileRole())
		}
		if snap.Err != nil {
			resp.Error = &sessionStateError{
				Type:    snap.Err.Type,
				Message: session.UserMessage(snap.Err),
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeAuthError responde con el status del código y el mensaje mostrable;
// el código técnico viaja para que el cliente pueda mapear sus propios textos.
func writeAuthError(w http.ResponseWriter, nerr *errs.Normalized) {
	writeJSON(w, authStatus(nerr.Type), map[string]any{
		"error": map[string]any{
			"type":    nerr.Type,
			"message": session.UserMessage(nerr),
		},
	})
}

func authStatus(code string) int {
	switch code {
	case "invalid-email", "weak-password":
		return http.StatusBadRequest
	case "user-not-found", "wrong-password":
		return http.StatusUnauthorized
	case "operation-not-allowed":
		return http.StatusForbidden
	case "email-already-in-use":
		return http.StatusConflict
	case "too-many-requests":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
