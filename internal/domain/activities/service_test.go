package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"nido/internal/adapters/store/memory"
	"nido/internal/domain/records"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

func newHarness(t *testing.T, st store.Store) (*Service, records.Child, records.Group) {
	t.Helper()
	ctx := context.Background()
	rec := records.NewService(st)

	f, err := rec.CreateFacility(ctx, records.CreateFacilityInput{Name: "Sunny Side"})
	if err != nil {
		t.Fatalf("CreateFacility error: %v", err)
	}
	g, err := rec.CreateGroup(ctx, records.CreateGroupInput{FacilityID: f.ID, Name: "Bees"})
	if err != nil {
		t.Fatalf("CreateGroup error: %v", err)
	}
	c, err := rec.CreateChild(ctx, records.CreateChildInput{
		FacilityID: f.ID, FirstName: "Mia", LastName: "López",
		BirthDate: "2021-03-15", CurrentGroupID: g.ID,
	})
	if err != nil {
		t.Fatalf("CreateChild error: %v", err)
	}

	svc := NewService(st, rec)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("act-%d", n)
	}
	return svc, c, g
}

func TestLog_DualWriteIsByteIdentical(t *testing.T) {
	st := memory.New()
	svc, c, g := newHarness(t, st)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)
	a, err := svc.Log(ctx, LogInput{
		ChildID:   c.ID,
		Type:      TypeMeal,
		Timestamp: ts,
		Details:   &Details{SubType: "lunch", Amount: "all", Mood: MoodGood},
		TeacherID: "t1",
	})
	if err != nil {
		t.Fatalf("Log error: %v", err)
	}

	childDoc, _ := st.Get(ctx, schema.ChildActivityPath(c.ID, "2024-05-01", a.ID))
	groupDoc, _ := st.Get(ctx, schema.GroupActivityPath(g.ID, "2024-05-01", a.ID))
	if childDoc == nil || groupDoc == nil {
		t.Fatalf("expected both copies, got child=%v group=%v", childDoc, groupDoc)
	}
	if !reflect.DeepEqual(childDoc, groupDoc) {
		t.Fatalf("copies differ:\n child %#v\n group %#v", childDoc, groupDoc)
	}

	cb, _ := json.Marshal(childDoc)
	gb, _ := json.Marshal(groupDoc)
	if !bytes.Equal(cb, gb) {
		t.Fatalf("serialized copies differ:\n %s\n %s", cb, gb)
	}
}

func TestLog_DateComesFromTimestamp(t *testing.T) {
	st := memory.New()
	svc, c, _ := newHarness(t, st)
	ctx := context.Background()

	// 23:30 del 30/04 en UTC-3 es 02:30 del 01/05 en UTC: la clave de fecha
	// sale del timestamp normalizado, no del reloj local
	loc := time.FixedZone("ART", -3*60*60)
	ts := time.Date(2024, 4, 30, 23, 30, 0, 0, loc)

	a, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeLearning, Timestamp: ts, TeacherID: "t1"})
	if err != nil {
		t.Fatalf("Log error: %v", err)
	}

	if v, _ := st.Get(ctx, schema.ChildActivityPath(c.ID, "2024-05-01", a.ID)); v == nil {
		t.Fatalf("expected activity under 2024-05-01")
	}
	if v, _ := st.Get(ctx, schema.ChildActivityPath(c.ID, "2024-04-30", a.ID)); v != nil {
		t.Fatalf("activity filed under local date instead of UTC")
	}
}

func TestLog_DefaultsAndValidation(t *testing.T) {
	st := memory.New()
	svc, c, g := newHarness(t, st)
	ctx := context.Background()

	// sin timestamp ni grupo explícitos: hora actual y sala del niño
	a, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeCheckIn, TeacherID: "t1"})
	if err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if a.GroupID != g.ID {
		t.Fatalf("expected group from child record, got %q", a.GroupID)
	}
	if !a.IsParentVisible {
		t.Fatalf("expected parent-visible by default")
	}
	if a.Timestamp != "2024-05-01T15:30:00Z" {
		t.Fatalf("unexpected timestamp: %s", a.Timestamp)
	}

	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: "siesta", TeacherID: "t1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeNap, TeacherID: "t1", Details: &Details{Mood: "grumpy"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown mood, got %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeNap}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without teacherId, got %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{ChildID: "ghost", Type: TypeNap, TeacherID: "t1"}); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown child, got %v", err)
	}
}

func TestLog_TypeAndMoodVocabulary(t *testing.T) {
	st := memory.New()
	svc, c, _ := newHarness(t, st)
	ctx := context.Background()

	for i, in := range []LogInput{
		{ChildID: c.ID, Type: TypePlay, TeacherID: "t1"},
		{ChildID: c.ID, Type: TypeLearning, TeacherID: "t1", Details: &Details{SubType: "colors"}},
		{ChildID: c.ID, Type: TypeIncident, TeacherID: "t1", Details: &Details{Mood: MoodAngry, Description: "bite"}},
		{ChildID: c.ID, Type: TypeNap, TeacherID: "t1", Details: &Details{Duration: "45m", Mood: MoodTired}},
	} {
		if _, err := svc.Log(ctx, in); err != nil {
			t.Fatalf("Log %d (%s) error: %v", i, in.Type, err)
		}
	}

	// vocabulario viejo que no existe en el esquema
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: "note", TeacherID: "t1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for type note, got %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeMeal, TeacherID: "t1", Details: &Details{Mood: "happy"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for mood happy, got %v", err)
	}
}

func TestQueriesSortedAndFiltered(t *testing.T) {
	st := memory.New()
	svc, c, g := newHarness(t, st)
	ctx := context.Background()

	hidden := false
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeNap, TeacherID: "t1", Timestamp: day.Add(13 * time.Hour)}); err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeCheckIn, TeacherID: "t1", Timestamp: day.Add(9 * time.Hour)}); err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if _, err := svc.Log(ctx, LogInput{
		ChildID: c.ID, Type: TypeIncident, TeacherID: "t1", Timestamp: day.Add(10 * time.Hour), ParentVisible: &hidden,
	}); err != nil {
		t.Fatalf("Log error: %v", err)
	}

	list, err := svc.ForChild(ctx, c.ID, "2024-05-01")
	if err != nil {
		t.Fatalf("ForChild error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(list))
	}
	if list[0].Type != TypeCheckIn || list[1].Type != TypeIncident || list[2].Type != TypeNap {
		t.Fatalf("unexpected order: %v %v %v", list[0].Type, list[1].Type, list[2].Type)
	}

	visible := ParentVisible(list)
	if len(visible) != 2 {
		t.Fatalf("expected 2 parent-visible activities, got %d", len(visible))
	}

	group, err := svc.ForGroup(ctx, g.ID, "2024-05-01")
	if err != nil {
		t.Fatalf("ForGroup error: %v", err)
	}
	if !reflect.DeepEqual(group, list) {
		t.Fatalf("group index diverges from child index:\n %+v\n %+v", group, list)
	}
}

// mirrorFailStore rechaza los writes al índice de grupo.
type mirrorFailStore struct {
	*memory.Store
}

func (m *mirrorFailStore) Set(ctx context.Context, path string, value any) error {
	if strings.HasPrefix(path, "/groupActivities/") {
		return errors.New("write refused")
	}
	return m.Store.Set(ctx, path, value)
}

func TestLog_MirrorFailureIsPartialWrite(t *testing.T) {
	mem := memory.New()
	_, c, g := newHarness(t, mem)
	ctx := context.Background()

	rec := records.NewService(mem)
	svc := NewService(&mirrorFailStore{Store: mem}, rec)

	_, err := svc.Log(ctx, LogInput{ChildID: c.ID, Type: TypeMeal, Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), TeacherID: "t1"})
	var pw *records.PartialWriteError
	if !errors.As(err, &pw) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if len(pw.Written) != 1 || !strings.HasPrefix(pw.Written[0], "/childActivities/") {
		t.Fatalf("unexpected written paths: %v", pw.Written)
	}
	if !strings.HasPrefix(pw.FailedPath, "/groupActivities/"+g.ID) {
		t.Fatalf("unexpected failed path: %s", pw.FailedPath)
	}
}
