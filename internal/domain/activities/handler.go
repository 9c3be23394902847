package activities

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nido/internal/domain/profile"
	"nido/internal/domain/records"
	"nido/internal/middleware"
	"nido/internal/schema"
)

func RegisterRoutes(r chi.Router, svc *Service, rec *records.Service) {
	r.Post("/activities", logActivityHandler(svc, rec))
	r.Get("/children/{childID}/activities", listChildActivitiesHandler(svc, rec))
	r.Get("/children/{childID}/gallery", listChildGalleryHandler(svc, rec))
	r.Get("/groups/{groupID}/activities", listGroupActivitiesHandler(svc, rec))
}

type logActivityRequest struct {
	ChildID   string   `json:"childId"`
	GroupID   string   `json:"groupId"`
	Type      Type     `json:"type"`
	Timestamp string   `json:"timestamp"` // RFC3339, opcional
	Details   *Details `json:"details"`
	// Puntero para distinguir "no enviado" (default visible) de false.
	IsParentVisible *bool `json:"isParentVisible"`
}

func caller(r *http.Request, rec *records.Service) (string, profile.Profile, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		return "", nil, false
	}
	p, err := rec.UserProfile(r.Context(), claims.UserID)
	if err != nil {
		return claims.UserID, nil, true
	}
	return claims.UserID, p, true
}

func logActivityHandler(svc *Service, rec *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, p, ok := caller(r, rec)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !profile.CalculatePermissions(p).CanWriteActivity {
			http.Error(w, "cannot write activities", http.StatusForbidden)
			return
		}

		var req logActivityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var ts time.Time
		if strings.TrimSpace(req.Timestamp) != "" {
			parsed, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				http.Error(w, "timestamp must be RFC3339", http.StatusBadRequest)
				return
			}
			ts = parsed
		}

		a, err := svc.Log(r.Context(), LogInput{
			ChildID:       req.ChildID,
			GroupID:       req.GroupID,
			Type:          req.Type,
			Timestamp:     ts,
			Details:       req.Details,
			ParentVisible: req.IsParentVisible,
			TeacherID:     uid,
		})
		if err != nil {
			writeActivityError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func listChildActivitiesHandler(svc *Service, rec *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, p, ok := caller(r, rec)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		childID := chi.URLParam(r, "childID")
		parentView, ok := authorizeChildRead(w, r, rec, uid, p, childID)
		if !ok {
			return
		}

		list, err := svc.ForChild(r.Context(), childID, dateParam(r, svc))
		if err != nil {
			writeActivityError(w, err)
			return
		}
		if parentView {
			list = ParentVisible(list)
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// listChildGalleryHandler devuelve solo las actividades con foto del día.
func listChildGalleryHandler(svc *Service, rec *records.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, p, ok := caller(r, rec)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !profile.CalculatePermissions(p).CanViewGallery {
			http.Error(w, "cannot view gallery", http.StatusForbidden)
			return
		}

		childID := chi.URLParam(r, "childID")
		parentView, ok := authorizeChildRead(w, r, rec, uid, p, childID)
		if !ok {
			return
		}

		list, err := svc.ForChild(r.Context(), childID, dateParam(r, svc))
		if err != nil {
			writeActivityError(w, err)
			return
		}
		if parentView {
			list = ParentVisible(list)
		}

		photos := make([]Activity, 0)
		for _, a := range list {
			if a.Type == TypePhoto || (a.Details != nil && len(a.Details.PhotoPaths) > 0) {
				photos = append(photos, a)
			}
		}
		writeJSON(w, http.StatusOK, photos)
	}
}

func listGroupActivitiesHandler(svc *Service, rec *records.Service) http.HandlerFunc {
	// Solo staff: el feed de sala incluye actividades no visibles para padres
	return func(w http.ResponseWriter, r *http.Request) {
		_, p, ok := caller(r, rec)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role := profile.Role("")
		if p != nil {
			role = p.ProfileRole()
		}
		if role != profile.RoleTeacher && role != profile.RoleManager {
			http.Error(w, "staff role required", http.StatusForbidden)
			return
		}

		list, err := svc.ForGroup(r.Context(), chi.URLParam(r, "groupID"), dateParam(r, svc))
		if err != nil {
			writeActivityError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// authorizeChildRead decide si el caller puede leer el diario del niño y si
// corresponde la vista filtrada de padre.
func authorizeChildRead(w http.ResponseWriter, r *http.Request, rec *records.Service, uid string, p profile.Profile, childID string) (parentView, ok bool) {
	role := profile.Role("")
	if p != nil {
		role = p.ProfileRole()
	}

	switch role {
	case profile.RoleTeacher, profile.RoleManager:
		return false, true
	case profile.RoleParent:
		c, err := rec.Child(r.Context(), childID)
		if err != nil {
			writeActivityError(w, err)
			return false, false
		}
		if !c.ParentIDs[uid] {
			http.Error(w, "not a guardian of this child", http.StatusForbidden)
			return false, false
		}
		return true, true
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
		return false, false
	}
}

func dateParam(r *http.Request, svc *Service) string {
	if d := strings.TrimSpace(r.URL.Query().Get("date")); d != "" {
		return d
	}
	return schema.Date(svc.now())
}

func writeActivityError(w http.ResponseWriter, err error) {
	var pw *records.PartialWriteError
	switch {
	case errors.As(err, &pw):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "partial write",
			"written":    pw.Written,
			"failedPath": pw.FailedPath,
		})
	case errors.Is(err, records.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, records.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
