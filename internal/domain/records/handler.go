package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nido/internal/domain/profile"
	"nido/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Instituciones (manager)
	r.Route("/facilities", func(fr chi.Router) {
		fr.Post("/", createFacilityHandler(svc))
		fr.Get("/{facilityID}", getFacilityHandler(svc))
		fr.Post("/{facilityID}/users/{userID}", registerFacilityUserHandler(svc))
	})

	// Salas
	r.Route("/groups", func(gr chi.Router) {
		gr.Post("/", createGroupHandler(svc))
		gr.Get("/{groupID}", getGroupHandler(svc))
		gr.Get("/{groupID}/children", listGroupChildrenHandler(svc))
		gr.Post("/{groupID}/teachers/{teacherID}", assignTeacherHandler(svc))
		gr.Delete("/{groupID}/teachers/{teacherID}", unassignTeacherHandler(svc))
	})

	// Legajos
	r.Route("/children", func(cr chi.Router) {
		cr.Post("/", createChildHandler(svc))
		cr.Get("/{childID}", getChildHandler(svc))
		cr.Put("/{childID}/group", setChildGroupHandler(svc))
		cr.Post("/{childID}/guardians/{parentID}", addGuardianHandler(svc))
		cr.Delete("/{childID}/guardians/{parentID}", removeGuardianHandler(svc))
	})

	// Vistas del usuario autenticado
	r.Get("/me/children", listMyChildrenHandler(svc))
	r.Get("/me/groups", listMyGroupsHandler(svc))
}

type createFacilityRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type createGroupRequest struct {
	FacilityID string   `json:"facilityId"`
	Name       string   `json:"name"`
	ColorCode  string   `json:"colorCode"`
	TeacherIDs []string `json:"teacherIds"`
}

type createChildRequest struct {
	FacilityID     string   `json:"facilityId"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	BirthDate      string   `json:"birthDate"`
	Gender         string   `json:"gender"`
	Notes          string   `json:"notes"`
	CurrentGroupID string   `json:"currentGroupId"`
	ParentIDs      []string `json:"parentIds"`
}

type setGroupRequest struct {
	GroupID string `json:"groupId"`
}

// callerRole resuelve el rol del caller releyendo su perfil del store.
func callerRole(r *http.Request, svc *Service) (string, profile.Role, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		return "", "", false
	}
	p, err := svc.UserProfile(r.Context(), claims.UserID)
	if err != nil {
		// sin perfil legible: identidad válida pero sin rol efectivo
		return claims.UserID, "", true
	}
	return claims.UserID, p.ProfileRole(), true
}

func requireManager(w http.ResponseWriter, r *http.Request, svc *Service) (string, bool) {
	uid, role, ok := callerRole(r, svc)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if role != profile.RoleManager {
		http.Error(w, "manager role required", http.StatusForbidden)
		return "", false
	}
	return uid, true
}

func createFacilityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}

		var req createFacilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		f, err := svc.CreateFacility(r.Context(), CreateFacilityInput(req))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func getFacilityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := callerRole(r, svc); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f, err := svc.Facility(r.Context(), chi.URLParam(r, "facilityID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func registerFacilityUserHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}
		err := svc.RegisterFacilityUser(r.Context(), chi.URLParam(r, "facilityID"), chi.URLParam(r, "userID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createGroupHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}

		var req createGroupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		g, err := svc.CreateGroup(r.Context(), CreateGroupInput(req))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

func getGroupHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := callerRole(r, svc); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g, err := svc.Group(r.Context(), chi.URLParam(r, "groupID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func listGroupChildrenHandler(svc *Service) http.HandlerFunc {
	// Solo staff: los padres ven a sus hijos por /me/children
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, ok := callerRole(r, svc)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if role != profile.RoleTeacher && role != profile.RoleManager {
			http.Error(w, "staff role required", http.StatusForbidden)
			return
		}

		kids, err := svc.ChildrenOfGroup(r.Context(), chi.URLParam(r, "groupID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kids)
	}
}

func assignTeacherHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}
		if err := svc.AssignTeacher(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "teacherID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func unassignTeacherHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}
		if err := svc.UnassignTeacher(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "teacherID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createChildHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}

		var req createChildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		c, err := svc.CreateChild(r.Context(), CreateChildInput{
			FacilityID:     req.FacilityID,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			BirthDate:      req.BirthDate,
			Gender:         Gender(req.Gender),
			Notes:          req.Notes,
			CurrentGroupID: req.CurrentGroupID,
			ParentIDs:      req.ParentIDs,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func getChildHandler(svc *Service) http.HandlerFunc {
	// Staff ve cualquier legajo; un padre solo el de sus hijos
	return func(w http.ResponseWriter, r *http.Request) {
		uid, role, ok := callerRole(r, svc)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		c, err := svc.Child(r.Context(), chi.URLParam(r, "childID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if role == profile.RoleParent && !c.ParentIDs[uid] {
			http.Error(w, "not a guardian of this child", http.StatusForbidden)
			return
		}
		if role != profile.RoleParent && role != profile.RoleTeacher && role != profile.RoleManager {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func setChildGroupHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}

		var req setGroupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if err := svc.SetChildGroup(r.Context(), chi.URLParam(r, "childID"), req.GroupID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addGuardianHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}
		if err := svc.AddGuardian(r.Context(), chi.URLParam(r, "childID"), chi.URLParam(r, "parentID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeGuardianHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireManager(w, r, svc); !ok {
			return
		}
		if err := svc.RemoveGuardian(r.Context(), chi.URLParam(r, "childID"), chi.URLParam(r, "parentID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listMyChildrenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, role, ok := callerRole(r, svc)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if role != profile.RoleParent {
			http.Error(w, "parent role required", http.StatusForbidden)
			return
		}

		kids, err := svc.ChildrenOfParent(r.Context(), uid)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kids)
	}
}

func listMyGroupsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, role, ok := callerRole(r, svc)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if role != profile.RoleTeacher {
			http.Error(w, "teacher role required", http.StatusForbidden)
			return
		}

		groups, err := svc.GroupsOfTeacher(r.Context(), uid)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	var pw *PartialWriteError
	switch {
	case errors.As(err, &pw):
		// mitad escrita: el caller necesita saberlo para reintentar o deshacer
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "partial write",
			"written":    pw.Written,
			"failedPath": pw.FailedPath,
		})
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInconsistent):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
