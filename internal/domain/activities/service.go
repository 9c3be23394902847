// Package activities registra el diario de los niños. Cada actividad se
// escribe dos veces, bajo childActivities (lectura de padres) y bajo
// groupActivities (lectura de la sala); las dos copias llevan el mismo id y
// el mismo payload.
package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"nido/internal/domain/records"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	store   store.Store
	records *records.Service
	now     func() time.Time
	newID   func() string
}

func NewService(st store.Store, rec *records.Service) *Service {
	return &Service{
		store:   st,
		records: rec,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

type LogInput struct {
	ChildID string
	// GroupID vacío usa la sala actual del niño.
	GroupID   string
	Type      Type
	Timestamp time.Time // cero usa la hora actual
	Details   *Details
	// ParentVisible nil defaultea a visible.
	ParentVisible *bool
	TeacherID     string
}

// Log valida y escribe la actividad bajo sus dos índices. Una falla del
// segundo write se reporta como records.PartialWriteError para que el caller
// pueda reintentar solo la mitad que falta.
func (s *Service) Log(ctx context.Context, in LogInput) (Activity, error) {
	child, err := s.records.Child(ctx, in.ChildID)
	if err != nil {
		return Activity{}, err
	}

	groupID := in.GroupID
	if groupID == "" {
		groupID = child.CurrentGroupID
	}
	if groupID == "" {
		return Activity{}, fmt.Errorf("%w: child %s has no group and none was given", ErrInvalidInput, in.ChildID)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	visible := true
	if in.ParentVisible != nil {
		visible = *in.ParentVisible
	}

	a := Activity{
		ID:              s.newID(),
		ChildID:         in.ChildID,
		GroupID:         groupID,
		TeacherID:       in.TeacherID,
		Type:            in.Type,
		Timestamp:       ts.UTC().Format(time.RFC3339),
		Details:         in.Details,
		IsParentVisible: visible,
		CreatedAt:       s.now().UTC().Format(time.RFC3339),
	}
	if err := a.validate(); err != nil {
		return Activity{}, err
	}

	// un solo encode: las dos copias salen del mismo árbol
	doc := encode(a)
	date := schema.Date(ts)

	childPath := schema.ChildActivityPath(a.ChildID, date, a.ID)
	groupPath := schema.GroupActivityPath(a.GroupID, date, a.ID)

	if err := s.store.Set(ctx, childPath, doc); err != nil {
		return Activity{}, err
	}
	if err := s.store.Set(ctx, groupPath, doc); err != nil {
		return Activity{}, &records.PartialWriteError{
			Written:    []string{childPath},
			FailedPath: groupPath,
			Err:        err,
		}
	}
	return a, nil
}

// ForChild lista las actividades de un niño en una fecha, ordenadas por
// timestamp y con el id como desempate.
func (s *Service) ForChild(ctx context.Context, childID string, date string) ([]Activity, error) {
	return s.listAt(ctx, schema.ChildActivitiesPath(childID, date))
}

func (s *Service) ForGroup(ctx context.Context, groupID string, date string) ([]Activity, error) {
	return s.listAt(ctx, schema.GroupActivitiesPath(groupID, date))
}

// ParentVisible filtra las actividades que un padre puede ver.
func ParentVisible(list []Activity) []Activity {
	out := make([]Activity, 0, len(list))
	for _, a := range list {
		if a.IsParentVisible {
			out = append(out, a)
		}
	}
	return out
}

func (s *Service) listAt(ctx context.Context, path string) ([]Activity, error) {
	v, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)

	out := make([]Activity, 0, len(m))
	for _, raw := range m {
		var a Activity
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func encode(a Activity) map[string]any {
	raw, _ := json.Marshal(a)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}
