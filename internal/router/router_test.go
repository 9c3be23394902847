package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nido/internal/adapters/identity/local"
	"nido/internal/adapters/store/memory"
	"nido/internal/domain/profile"
	"nido/internal/router"
	"nido/internal/schema"
)

func seedProfile(t *testing.T, st *memory.Store, uid string, p profile.Profile) {
	t.Helper()
	doc, err := profile.Encode(profile.WithID(p, uid))
	if err != nil {
		t.Fatalf("encode profile: %v", err)
	}
	if err := st.Set(context.Background(), schema.UserPath(uid), doc); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func newDevServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()

	seedProfile(t, st, "m1", profile.Manager{
		Base:           profile.NewBase("mgr@example.com", "Marta Manager", "f1", time.Now()),
		Role:           profile.RoleManager,
		CanManageStaff: true,
	})
	seedProfile(t, st, "t1", profile.NewTeacher(profile.NewBase("tea@example.com", "Tomás Teacher", "f1", time.Now())))
	p := profile.NewParent(profile.NewBase("par@example.com", "Paula Parent", "f1", time.Now()))
	p.IsPayer = true
	seedProfile(t, st, "p1", p)

	ts := httptest.NewServer(router.NewRouter(router.Options{Store: st}))
	t.Cleanup(ts.Close)
	return ts, st
}

func TestHTTP_EndToEnd_RecordsAndActivities(t *testing.T) {
	ts, _ := newDevServer(t)

	// 1) Manager crea institución, sala y legajo
	facilityID := createJSON(t, ts.URL, "/facilities", "m1", map[string]any{
		"name": "Sunny Side",
	})
	groupID := createJSON(t, ts.URL, "/groups", "m1", map[string]any{
		"facilityId": facilityID,
		"name":       "Bumblebees",
		"colorCode":  "#FFCC00",
		"teacherIds": []string{"t1"},
	})
	childID := createJSON(t, ts.URL, "/children", "m1", map[string]any{
		"facilityId":     facilityID,
		"firstName":      "Mia",
		"lastName":       "López",
		"birthDate":      "2021-03-15",
		"gender":         "female",
		"currentGroupId": groupID,
		"parentIds":      []string{"p1"},
	})

	// 2) Teacher NO puede crear instituciones
	{
		st, _ := doReq(t, ts.URL, "POST", "/facilities", "t1", map[string]any{"name": "Rogue"})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 facility by teacher, got %d", st)
		}
	}

	// 3) Teacher registra actividades (una oculta para padres)
	{
		st, body := doReq(t, ts.URL, "POST", "/activities", "t1", map[string]any{
			"childId": childID,
			"type":    "check_in",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 activity, got %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/activities", "t1", map[string]any{
			"childId":         childID,
			"type":            "incident",
			"details":         map[string]any{"description": "staff only"},
			"isParentVisible": false,
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 hidden activity, got %d body=%s", st, string(body))
		}
	}

	// 4) Parent NO puede registrar actividades
	{
		st, _ := doReq(t, ts.URL, "POST", "/activities", "p1", map[string]any{
			"childId": childID,
			"type":    "play",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 activity by parent, got %d", st)
		}
	}

	// 5) Parent ve a sus hijos y solo las actividades visibles
	{
		st, body := doReq(t, ts.URL, "GET", "/me/children", "p1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 my children, got %d body=%s", st, string(body))
		}
		var kids []map[string]any
		_ = json.Unmarshal(body, &kids)
		if len(kids) != 1 || kids[0]["id"] != childID {
			t.Fatalf("unexpected children: %s", string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/children/"+childID+"/activities", "p1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 child activities, got %d body=%s", st, string(body))
		}
		var list []map[string]any
		_ = json.Unmarshal(body, &list)
		if len(list) != 1 {
			t.Fatalf("parent must see only visible activities, got %s", string(body))
		}
	}

	// 6) El feed de sala del teacher incluye la oculta
	{
		st, body := doReq(t, ts.URL, "GET", "/groups/"+groupID+"/activities", "t1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 group activities, got %d body=%s", st, string(body))
		}
		var list []map[string]any
		_ = json.Unmarshal(body, &list)
		if len(list) != 2 {
			t.Fatalf("expected 2 activities in group feed, got %s", string(body))
		}
	}

	// 7) Un extraño no ve el legajo; el guardián sí
	{
		st, _ := doReq(t, ts.URL, "GET", "/children/"+childID, "", nil)
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 without identity, got %d", st)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "GET", "/children/"+childID, "p1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 child by guardian, got %d", st)
		}
	}

	// 8) Teacher ve sus salas
	{
		st, body := doReq(t, ts.URL, "GET", "/me/groups", "t1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 my groups, got %d body=%s", st, string(body))
		}
		var groups []map[string]any
		_ = json.Unmarshal(body, &groups)
		if len(groups) != 1 || groups[0]["id"] != groupID {
			t.Fatalf("unexpected groups: %s", string(body))
		}
	}
}

func TestHTTP_AuthFlow(t *testing.T) {
	st := memory.New()
	b := local.New(st, local.Options{TokenSecret: "test-secret"})
	ts := httptest.NewServer(router.NewRouter(router.Options{Verifier: b, Store: st, Backend: b}))
	defer ts.Close()

	// alta de teacher: devuelve token usable
	var signup struct {
		UID   string `json:"uid"`
		Token string `json:"token"`
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/auth/signup", "", map[string]any{
			"email":       "ann@example.com",
			"password":    "Secret1",
			"displayName": "Ann Lee",
			"role":        "teacher",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 signup, got %d body=%s", st, string(body))
		}
		_ = json.Unmarshal(body, &signup)
		if signup.UID == "" || signup.Token == "" {
			t.Fatalf("missing uid/token: %s", string(body))
		}
	}

	// el token autentica contra la API
	{
		st, body := doBearer(t, ts.URL, "GET", "/me/groups", signup.Token, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 my groups with token, got %d body=%s", st, string(body))
		}
	}

	// sin token no hay identidad
	{
		st, _ := doReq(t, ts.URL, "GET", "/me/groups", "", nil)
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 without token, got %d", st)
		}
	}

	// email duplicado => 409 con código cerrado
	{
		st, body := doReq(t, ts.URL, "POST", "/auth/signup", "", map[string]any{
			"email":       "ann@example.com",
			"password":    "Secret1",
			"displayName": "Ann Lee",
			"role":        "teacher",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 duplicate signup, got %d body=%s", st, string(body))
		}
		var resp struct {
			Error struct {
				Type string `json:"type"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Error.Type != "email-already-in-use" {
			t.Fatalf("expected email-already-in-use, got %s", string(body))
		}
	}

	// password incorrecta => 401
	{
		st, _ := doReq(t, ts.URL, "POST", "/auth/signin", "", map[string]any{
			"email":    "ann@example.com",
			"password": "nope",
		})
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 wrong password, got %d", st)
		}
	}

	// signin correcto emite token nuevo
	{
		st, body := doReq(t, ts.URL, "POST", "/auth/signin", "", map[string]any{
			"email":    "ann@example.com",
			"password": "Secret1",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 signin, got %d body=%s", st, string(body))
		}
	}
}

func TestHTTP_SessionState(t *testing.T) {
	st := memory.New()
	b := local.New(st, local.Options{TokenSecret: "test-secret"})
	ts := httptest.NewServer(router.NewRouter(router.Options{Verifier: b, Store: st, Backend: b}))
	defer ts.Close()

	type state struct {
		Status      string `json:"status"`
		UID         string `json:"uid"`
		Role        string `json:"role"`
		Permissions struct {
			CanWriteActivity bool `json:"canWriteActivity"`
		} `json:"permissions"`
	}
	getState := func() state {
		st, body := doReq(t, ts.URL, "GET", "/auth/session", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 session, got %d body=%s", st, string(body))
		}
		var s state
		_ = json.Unmarshal(body, &s)
		return s
	}

	// sin nadie logueado el proceso arranca sin sesión
	if s := getState(); s.Status != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %+v", s)
	}

	{
		st, body := doReq(t, ts.URL, "POST", "/auth/signup", "", map[string]any{
			"email":       "ann@example.com",
			"password":    "Secret1",
			"displayName": "Ann Lee",
			"role":        "teacher",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 signup, got %d body=%s", st, string(body))
		}
	}

	s := getState()
	if s.Status != "authenticated" || s.UID == "" {
		t.Fatalf("expected authenticated session, got %+v", s)
	}
	if s.Role != "teacher" || !s.Permissions.CanWriteActivity {
		t.Fatalf("expected teacher permissions in session, got %+v", s)
	}

	{
		st, _ := doReq(t, ts.URL, "POST", "/auth/signout", "", nil)
		if st != http.StatusNoContent {
			t.Fatalf("expected 204 signout, got %d", st)
		}
	}
	if s := getState(); s.Status != "unauthenticated" || s.UID != "" {
		t.Fatalf("expected cleared session after signout, got %+v", s)
	}
}

func TestHTTP_AdminSeedAndReset(t *testing.T) {
	ts, _ := newDevServer(t)

	// solo managers
	{
		st, _ := doReq(t, ts.URL, "POST", "/admin/seed", "t1", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 seed by teacher, got %d", st)
		}
	}

	var seeded struct {
		FacilityID string   `json:"facilityId"`
		GroupID    string   `json:"groupId"`
		ChildIDs   []string `json:"childIds"`
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/admin/seed", "m1", nil)
		if st != http.StatusCreated {
			t.Fatalf("expected 201 seed, got %d body=%s", st, string(body))
		}
		_ = json.Unmarshal(body, &seeded)
		if seeded.FacilityID == "" || seeded.GroupID == "" || len(seeded.ChildIDs) != 2 {
			t.Fatalf("incomplete seed response: %s", string(body))
		}
	}

	// lo sembrado es consultable
	{
		st, _ := doReq(t, ts.URL, "GET", "/children/"+seeded.ChildIDs[0], "m1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 seeded child, got %d", st)
		}
	}

	// reset vacía el árbol (incluido el perfil del manager)
	{
		st, _ := doReq(t, ts.URL, "POST", "/admin/reset", "m1", nil)
		if st != http.StatusNoContent {
			t.Fatalf("expected 204 reset, got %d", st)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "POST", "/admin/seed", "m1", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 after reset wiped profiles, got %d", st)
		}
	}
}

func createJSON(t *testing.T, baseURL, path, debugUserID string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", path, debugUserID, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 %s, got %d body=%s", path, st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("%s: missing id body=%s", path, string(body))
	}
	return resp.ID
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()
	return do(t, baseURL, method, path, debugUserID, "", body)
}

func doBearer(t *testing.T, baseURL, method, path, token string, body any) (int, []byte) {
	t.Helper()
	return do(t, baseURL, method, path, "", token, body)
}

func do(t *testing.T, baseURL, method, path, debugUserID, token string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
