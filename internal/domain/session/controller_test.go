package session

import (
	"context"
	"testing"
	"time"

	"nido/internal/adapters/identity/local"
	"nido/internal/adapters/store/memory"
	"nido/internal/domain/profile"
	"nido/internal/schema"
)

func newHarness() (*Controller, *local.Backend, *memory.Store) {
	st := memory.New()
	b := local.New(st, local.Options{})
	c := NewController(b, st, nil)
	return c, b, st
}

func teacherProfile(email, name string) profile.Profile {
	base := profile.NewBase(email, name, "1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return profile.NewTeacher(base)
}

func payerParentProfile(email, name string) profile.Profile {
	base := profile.NewBase(email, name, "1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	p := profile.NewParent(base)
	p.IsPayer = true
	return p
}

func TestController_StartWithoutSession(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()

	if got := c.Snapshot().Status; got != StatusIdle {
		t.Fatalf("expected idle before Start, got %s", got)
	}

	c.Start()

	s := c.Snapshot()
	if s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", s.Status)
	}
	if s.Profile != nil || s.User != nil || s.Err != nil {
		t.Fatalf("expected empty state, got %+v", s)
	}
}

func TestController_SignUpToAuthenticated(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()
	c.Start()

	if nerr := c.SignUp(context.Background(), "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}

	s := c.Snapshot()
	if s.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", s.Status)
	}
	if s.User == nil || s.User.Email != "ann@example.com" {
		t.Fatalf("unexpected user: %+v", s.User)
	}
	if s.Profile == nil || s.Profile.ProfileRole() != profile.RoleTeacher {
		t.Fatalf("expected teacher profile, got %+v", s.Profile)
	}
	want := profile.Permissions{CanWriteActivity: true, CanViewGallery: true, CanManageBilling: false}
	if s.Permissions != want {
		t.Fatalf("unexpected permissions: %+v", s.Permissions)
	}
	if s.Err != nil || s.IsLoading {
		t.Fatalf("expected settled state, got err=%v loading=%v", s.Err, s.IsLoading)
	}
}

func TestController_ParentPayerBilling(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()
	c.Start()

	if nerr := c.SignUp(context.Background(), "pam@example.com", "Secret1", payerParentProfile("pam@example.com", "Pam Ruiz")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}

	s := c.Snapshot()
	want := profile.Permissions{CanWriteActivity: false, CanViewGallery: true, CanManageBilling: true}
	if s.Permissions != want {
		t.Fatalf("unexpected permissions: %+v", s.Permissions)
	}
}

func TestController_MissingProfileKeepsIdentity(t *testing.T) {
	c, _, st := newHarness()
	defer c.Close()
	c.Start()

	ctx := context.Background()
	if nerr := c.SignUp(ctx, "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}
	uid := c.Snapshot().User.UID

	// el documento desaparece por detrás: identidad intacta, permisos en cero
	if err := st.Set(ctx, schema.UserPath(uid), nil); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	s := c.Snapshot()
	if s.Status != StatusAuthenticated || s.User == nil {
		t.Fatalf("identity must survive a missing profile, got %+v", s)
	}
	if s.Profile != nil {
		t.Fatalf("expected no profile, got %+v", s.Profile)
	}
	if s.Permissions != (profile.Permissions{}) {
		t.Fatalf("expected zero permissions, got %+v", s.Permissions)
	}
	if s.Err == nil || s.Err.Type != "not-found" {
		t.Fatalf("expected not-found error, got %v", s.Err)
	}
}

func TestController_InvalidProfileIsNonFatal(t *testing.T) {
	c, _, st := newHarness()
	defer c.Close()
	c.Start()

	ctx := context.Background()
	if nerr := c.SignUp(ctx, "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}
	uid := c.Snapshot().User.UID

	if err := st.Set(ctx, schema.UserPath(uid), map[string]any{"role": "astronaut"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	s := c.Snapshot()
	if s.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", s.Status)
	}
	if s.Err == nil || s.Err.Type != "invalid-data" {
		t.Fatalf("expected invalid-data error, got %v", s.Err)
	}
	if s.Permissions != (profile.Permissions{}) {
		t.Fatalf("expected zero permissions, got %+v", s.Permissions)
	}
}

func TestController_SignOutClearsState(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()
	c.Start()

	ctx := context.Background()
	if nerr := c.SignUp(ctx, "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}
	if nerr := c.SignOut(ctx); nerr != nil {
		t.Fatalf("SignOut error: %v", nerr)
	}

	s := c.Snapshot()
	if s.Status != StatusUnauthenticated || s.User != nil || s.Profile != nil || s.Err != nil {
		t.Fatalf("expected clean unauthenticated state, got %+v", s)
	}
	if s.Permissions != (profile.Permissions{}) {
		t.Fatalf("expected zero permissions, got %+v", s.Permissions)
	}
}

func TestController_StaleProfileNeverApplied(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()
	c.Start()

	ctx := context.Background()
	if nerr := c.SignUp(ctx, "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}
	uidA := c.Snapshot().User.UID

	if nerr := c.SignOut(ctx); nerr != nil {
		t.Fatalf("SignOut error: %v", nerr)
	}
	if nerr := c.SignUp(ctx, "bob@example.com", "Secret1", payerParentProfile("bob@example.com", "Bob Díaz")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}

	// entrega demorada del perfil de la sesión anterior: debe descartarse
	staleDoc, err := profile.Encode(profile.WithID(teacherProfile("ann@example.com", "Ann Lee"), uidA))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	c.onProfileValue(uidA, staleDoc)

	s := c.Snapshot()
	if s.Profile == nil || s.Profile.ProfileRole() != profile.RoleParent {
		t.Fatalf("stale profile resurrected: %+v", s.Profile)
	}
	if s.Profile.Shared().Email != "bob@example.com" {
		t.Fatalf("expected bob's profile, got %s", s.Profile.Shared().Email)
	}
}

func TestController_SubscribeDeliversAndUnsubscribes(t *testing.T) {
	c, _, _ := newHarness()
	defer c.Close()

	var seen []Status
	cancel := c.Subscribe(func(s State) { seen = append(seen, s.Status) })

	if len(seen) != 1 || seen[0] != StatusIdle {
		t.Fatalf("expected immediate idle snapshot, got %v", seen)
	}

	c.Start()
	if last := seen[len(seen)-1]; last != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated after Start, got %v", seen)
	}

	n := len(seen)
	cancel()
	cancel() // idempotente

	_ = c.SignUp(context.Background(), "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee"))
	if len(seen) != n {
		t.Fatalf("subscriber fired after cancel: %v", seen)
	}
}

func TestController_CloseDetachesFromBackend(t *testing.T) {
	c, b, _ := newHarness()
	c.Start()
	c.Close()

	if nerr := b.SignUp(context.Background(), "ann@example.com", "Secret1", teacherProfile("ann@example.com", "Ann Lee")); nerr != nil {
		t.Fatalf("SignUp error: %v", nerr)
	}

	if s := c.Snapshot(); s.Status != StatusUnauthenticated || s.User != nil {
		t.Fatalf("closed controller must not track new sessions, got %+v", s)
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Fatalf("nil error must map to empty message, got %q", got)
	}

	c, _, _ := newHarness()
	defer c.Close()
	c.Start()

	nerr := c.SignIn(context.Background(), "ghost@example.com", "Secret1")
	if nerr == nil {
		t.Fatalf("expected sign-in failure")
	}
	if got := UserMessage(nerr); got != "No account found with this email address." {
		t.Fatalf("unexpected message: %q", got)
	}

	s := c.Snapshot()
	if s.ErrorMessage() != "" {
		t.Fatalf("sign-in failure must not leave a state error, got %q", s.ErrorMessage())
	}
}
