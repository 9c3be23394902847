package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nido/internal/adapters/identity/local"
	"nido/internal/domain/activities"
	"nido/internal/domain/profile"
	"nido/internal/domain/records"
	"nido/internal/middleware"
	"nido/internal/platform/logger"
	"nido/internal/ports/store"
)

// Panel de staging: sembrar datos de demo y resetear el árbol. Solo managers.
func registerAdminRoutes(r chi.Router, st store.Store, rec *records.Service, act *activities.Service, b *local.Backend, log logger.Logger) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Post("/seed", seedHandler(rec, act, b, log))
		ar.Post("/reset", resetHandler(st, rec, log))
	})
}

func requireManager(w http.ResponseWriter, r *http.Request, rec *records.Service) bool {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	p, err := rec.UserProfile(r.Context(), claims.UserID)
	if err != nil || p.ProfileRole() != profile.RoleManager {
		http.Error(w, "manager role required", http.StatusForbidden)
		return false
	}
	return true
}

type seedResponse struct {
	FacilityID string   `json:"facilityId"`
	GroupID    string   `json:"groupId"`
	ChildIDs   []string `json:"childIds"`
	TeacherUID string   `json:"teacherUid"`
	ParentUID  string   `json:"parentUid"`
}

func seedHandler(rec *records.Service, act *activities.Service, b *local.Backend, log logger.Logger) http.HandlerFunc {
	const (
		teacherEmail = "demo.teacher@example.com"
		parentEmail  = "demo.parent@example.com"
		demoPassword = "Demo123!"
	)

	return func(w http.ResponseWriter, r *http.Request) {
		if !requireManager(w, r, rec) {
			return
		}
		ctx := r.Context()

		f, err := rec.CreateFacility(ctx, records.CreateFacilityInput{
			Name:    "Demo Facility",
			Address: "ul. Słoneczna 5, Warszawa",
			Email:   "hello@example.com",
		})
		if err != nil {
			http.Error(w, "seed facility: "+err.Error(), http.StatusInternalServerError)
			return
		}

		teacherUID, err := seedAccount(ctx, b, teacherEmail, demoPassword,
			profile.NewTeacher(profile.NewBase(teacherEmail, "Demo Teacher", f.ID, time.Now())))
		if err != nil {
			http.Error(w, "seed teacher: "+err.Error(), http.StatusInternalServerError)
			return
		}
		parentUID, err := seedAccount(ctx, b, parentEmail, demoPassword,
			profile.NewParent(profile.NewBase(parentEmail, "Demo Parent", f.ID, time.Now())))
		if err != nil {
			http.Error(w, "seed parent: "+err.Error(), http.StatusInternalServerError)
			return
		}
		// la siembra no debe dejar sesión colgada en el backend
		defer func() { _ = b.SignOut(context.WithoutCancel(ctx)) }()

		g, err := rec.CreateGroup(ctx, records.CreateGroupInput{
			FacilityID: f.ID,
			Name:       "Bumblebees",
			ColorCode:  "#FFCC00",
			TeacherIDs: []string{teacherUID},
		})
		if err != nil {
			http.Error(w, "seed group: "+err.Error(), http.StatusInternalServerError)
			return
		}

		childIDs := make([]string, 0, 2)
		for _, kid := range []records.CreateChildInput{
			{FacilityID: f.ID, FirstName: "Mia", LastName: "Demo", BirthDate: "2021-03-15",
				Gender: records.GenderFemale, CurrentGroupID: g.ID, ParentIDs: []string{parentUID}},
			{FacilityID: f.ID, FirstName: "Leo", LastName: "Demo", BirthDate: "2022-07-02",
				Gender: records.GenderMale, CurrentGroupID: g.ID, ParentIDs: []string{parentUID}},
		} {
			c, err := rec.CreateChild(ctx, kid)
			if err != nil {
				http.Error(w, "seed child: "+err.Error(), http.StatusInternalServerError)
				return
			}
			childIDs = append(childIDs, c.ID)
		}

		for _, uid := range []string{teacherUID, parentUID} {
			if err := rec.RegisterFacilityUser(ctx, f.ID, uid); err != nil {
				http.Error(w, "seed facility user: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		for _, cid := range childIDs {
			if _, err := act.Log(ctx, activities.LogInput{
				ChildID:   cid,
				Type:      activities.TypeCheckIn,
				TeacherID: teacherUID,
			}); err != nil {
				http.Error(w, "seed activity: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		log.Info("demo data seeded", map[string]any{"facility": f.ID, "group": g.ID})
		writeJSON(w, http.StatusCreated, seedResponse{
			FacilityID: f.ID,
			GroupID:    g.ID,
			ChildIDs:   childIDs,
			TeacherUID: teacherUID,
			ParentUID:  parentUID,
		})
	}
}

func seedAccount(ctx context.Context, b *local.Backend, email, password string, p profile.Profile) (string, error) {
	if uid, ok := b.UIDByEmail(email); ok {
		return uid, nil
	}
	if nerr := b.SignUp(ctx, email, password, p); nerr != nil {
		return "", nerr
	}
	uid, _ := b.UIDByEmail(email)
	return uid, nil
}

// resetHandler vacía el árbol completo. Las cuentas del backend de identidad
// quedan; solo desaparecen sus perfiles, igual que en el panel original.
func resetHandler(st store.Store, rec *records.Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireManager(w, r, rec) {
			return
		}

		if err := st.Set(r.Context(), "/", nil); err != nil {
			http.Error(w, "reset failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		log.Warn("store wiped by admin reset", nil)
		w.WriteHeader(http.StatusNoContent)
	}
}
