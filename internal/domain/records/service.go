// Package records administra los legajos (facility, group, child) y los
// índices inversos denormalizados que los acompañan. El store no garantiza la
// consistencia entre campos forward y tablas lookup; cada mutador de este
// package mantiene el espejo en la misma operación lógica.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"nido/internal/domain/profile"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// mutation es un paso de una escritura multi-path. partial no nil aplica un
// merge; si no, Set de value (nil borra).
type mutation struct {
	path    string
	value   any
	partial map[string]any
}

// apply ejecuta las mutaciones en orden. Una falla con al menos un write ya
// aplicado se reporta como PartialWriteError; la falla del primer write se
// devuelve tal cual.
func (s *Service) apply(ctx context.Context, muts []mutation) error {
	written := make([]string, 0, len(muts))
	for _, m := range muts {
		var err error
		if m.partial != nil {
			err = s.store.Update(ctx, m.path, m.partial)
		} else {
			err = s.store.Set(ctx, m.path, m.value)
		}
		if err != nil {
			if len(written) == 0 {
				return err
			}
			return &PartialWriteError{Written: written, FailedPath: m.path, Err: err}
		}
		written = append(written, m.path)
	}
	return nil
}

type CreateFacilityInput struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

func (s *Service) CreateFacility(ctx context.Context, in CreateFacilityInput) (Facility, error) {
	now := s.stamp()
	f := Facility{
		ID:        s.newID(),
		Name:      in.Name,
		Address:   in.Address,
		Phone:     in.Phone,
		Email:     in.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.validate(); err != nil {
		return Facility{}, err
	}

	if err := s.store.Set(ctx, schema.FacilityPath(f.ID), encode(f)); err != nil {
		return Facility{}, err
	}
	return f, nil
}

type CreateGroupInput struct {
	FacilityID string
	Name       string
	ColorCode  string
	TeacherIDs []string
}

// CreateGroup escribe la sala junto con su espejo en facilityGroups y, por
// cada teacher inicial, teacherGroups y assignedGroupIds del perfil.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (Group, error) {
	if _, err := s.Facility(ctx, in.FacilityID); err != nil {
		return Group{}, err
	}

	now := s.stamp()
	g := Group{
		ID:         s.newID(),
		FacilityID: in.FacilityID,
		Name:       in.Name,
		ColorCode:  in.ColorCode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(in.TeacherIDs) > 0 {
		g.TeacherIDs = map[string]bool{}
		for _, tid := range in.TeacherIDs {
			g.TeacherIDs[tid] = true
		}
	}
	if err := g.validate(); err != nil {
		return Group{}, err
	}

	muts := []mutation{
		{path: schema.GroupPath(g.ID), value: encode(g)},
		{path: schema.FacilityGroupPath(g.FacilityID, g.ID), value: true},
	}
	for _, tid := range sortedKeys(g.TeacherIDs) {
		muts = append(muts,
			mutation{path: schema.TeacherGroupPath(tid, g.ID), value: true},
			mutation{path: schema.UserPath(tid), partial: map[string]any{
				"assignedGroupIds/" + g.ID: true,
				"updatedAt":                now,
			}},
		)
	}

	if err := s.apply(ctx, muts); err != nil {
		return Group{}, err
	}
	return g, nil
}

type CreateChildInput struct {
	FacilityID     string
	FirstName      string
	LastName       string
	BirthDate      string
	Gender         Gender
	Notes          string
	CurrentGroupID string
	ParentIDs      []string
}

// CreateChild escribe el legajo y todos sus espejos: facilityChildren,
// groupChildren (si tiene sala) y, por cada guardián, parentChildren más el
// childrenIds del perfil del padre.
func (s *Service) CreateChild(ctx context.Context, in CreateChildInput) (Child, error) {
	if _, err := s.Facility(ctx, in.FacilityID); err != nil {
		return Child{}, err
	}
	if in.CurrentGroupID != "" {
		if _, err := s.Group(ctx, in.CurrentGroupID); err != nil {
			return Child{}, err
		}
	}

	now := s.stamp()
	c := Child{
		ID:             s.newID(),
		FacilityID:     in.FacilityID,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		BirthDate:      in.BirthDate,
		Gender:         in.Gender,
		Notes:          in.Notes,
		CurrentGroupID: in.CurrentGroupID,
		ParentIDs:      map[string]bool{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, pid := range in.ParentIDs {
		c.ParentIDs[pid] = true
	}
	if err := c.validate(); err != nil {
		return Child{}, err
	}

	muts := []mutation{
		{path: schema.ChildPath(c.ID), value: encode(c)},
		{path: schema.FacilityChildPath(c.FacilityID, c.ID), value: true},
	}
	if c.CurrentGroupID != "" {
		muts = append(muts, mutation{path: schema.GroupChildPath(c.CurrentGroupID, c.ID), value: true})
	}
	for _, pid := range sortedKeys(c.ParentIDs) {
		muts = append(muts,
			mutation{path: schema.ParentChildPath(pid, c.ID), value: true},
			mutation{path: schema.UserPath(pid), partial: map[string]any{
				"childrenIds/" + c.ID: true,
				"updatedAt":           now,
			}},
		)
	}

	if err := s.apply(ctx, muts); err != nil {
		return Child{}, err
	}
	return c, nil
}

// SetChildGroup mueve al niño de sala: actualiza currentGroupId y mantiene
// groupChildren de la sala vieja y la nueva en la misma operación lógica.
// newGroupID vacío saca al niño de toda sala.
func (s *Service) SetChildGroup(ctx context.Context, childID, newGroupID string) error {
	c, err := s.Child(ctx, childID)
	if err != nil {
		return err
	}
	if newGroupID != "" {
		if _, err := s.Group(ctx, newGroupID); err != nil {
			return err
		}
	}
	if c.CurrentGroupID == newGroupID {
		return nil
	}

	now := s.stamp()
	childPatch := map[string]any{"updatedAt": now}
	if newGroupID == "" {
		childPatch["currentGroupId"] = nil
	} else {
		childPatch["currentGroupId"] = newGroupID
	}

	muts := []mutation{{path: schema.ChildPath(childID), partial: childPatch}}
	if c.CurrentGroupID != "" {
		muts = append(muts, mutation{path: schema.GroupChildPath(c.CurrentGroupID, childID), value: nil})
	}
	if newGroupID != "" {
		muts = append(muts, mutation{path: schema.GroupChildPath(newGroupID, childID), value: true})
	}
	return s.apply(ctx, muts)
}

// AddGuardian vincula un padre con un niño por los tres caminos: parentIds
// del legajo, parentChildren y childrenIds del perfil.
func (s *Service) AddGuardian(ctx context.Context, childID, parentID string) error {
	if _, err := s.Child(ctx, childID); err != nil {
		return err
	}
	if err := s.requireRole(ctx, parentID, profile.RoleParent); err != nil {
		return err
	}

	now := s.stamp()
	return s.apply(ctx, []mutation{
		{path: schema.ChildPath(childID), partial: map[string]any{
			"parentIds/" + parentID: true,
			"updatedAt":             now,
		}},
		{path: schema.ParentChildPath(parentID, childID), value: true},
		{path: schema.UserPath(parentID), partial: map[string]any{
			"childrenIds/" + childID: true,
			"updatedAt":              now,
		}},
	})
}

func (s *Service) RemoveGuardian(ctx context.Context, childID, parentID string) error {
	if _, err := s.Child(ctx, childID); err != nil {
		return err
	}

	now := s.stamp()
	return s.apply(ctx, []mutation{
		{path: schema.ChildPath(childID), partial: map[string]any{
			"parentIds/" + parentID: nil,
			"updatedAt":             now,
		}},
		{path: schema.ParentChildPath(parentID, childID), value: nil},
		{path: schema.UserPath(parentID), partial: map[string]any{
			"childrenIds/" + childID: nil,
			"updatedAt":              now,
		}},
	})
}

// AssignTeacher agrega un teacher a la sala manteniendo teacherIds,
// teacherGroups y assignedGroupIds del perfil.
func (s *Service) AssignTeacher(ctx context.Context, groupID, teacherID string) error {
	if _, err := s.Group(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireRole(ctx, teacherID, profile.RoleTeacher); err != nil {
		return err
	}

	now := s.stamp()
	return s.apply(ctx, []mutation{
		{path: schema.GroupPath(groupID), partial: map[string]any{
			"teacherIds/" + teacherID: true,
			"updatedAt":               now,
		}},
		{path: schema.TeacherGroupPath(teacherID, groupID), value: true},
		{path: schema.UserPath(teacherID), partial: map[string]any{
			"assignedGroupIds/" + groupID: true,
			"updatedAt":                   now,
		}},
	})
}

func (s *Service) UnassignTeacher(ctx context.Context, groupID, teacherID string) error {
	if _, err := s.Group(ctx, groupID); err != nil {
		return err
	}

	now := s.stamp()
	return s.apply(ctx, []mutation{
		{path: schema.GroupPath(groupID), partial: map[string]any{
			"teacherIds/" + teacherID: nil,
			"updatedAt":               now,
		}},
		{path: schema.TeacherGroupPath(teacherID, groupID), value: nil},
		{path: schema.UserPath(teacherID), partial: map[string]any{
			"assignedGroupIds/" + groupID: nil,
			"updatedAt":                   now,
		}},
	})
}

// RegisterFacilityUser anota al usuario en facilityUsers con su role y fija
// el facilityId del perfil.
func (s *Service) RegisterFacilityUser(ctx context.Context, facilityID, userID string) error {
	if _, err := s.Facility(ctx, facilityID); err != nil {
		return err
	}
	p, err := s.UserProfile(ctx, userID)
	if err != nil {
		return err
	}

	now := s.stamp()
	return s.apply(ctx, []mutation{
		{path: schema.FacilityUserPath(facilityID, userID), value: map[string]any{
			"role": string(p.ProfileRole()),
		}},
		{path: schema.UserPath(userID), partial: map[string]any{
			"facilityId": facilityID,
			"updatedAt":  now,
		}},
	})
}

func (s *Service) Facility(ctx context.Context, id string) (Facility, error) {
	return getRecord[Facility](ctx, s, schema.FacilityPath(id), id, func(f Facility) string { return f.ID })
}

func (s *Service) Group(ctx context.Context, id string) (Group, error) {
	return getRecord[Group](ctx, s, schema.GroupPath(id), id, func(g Group) string { return g.ID })
}

func (s *Service) Child(ctx context.Context, id string) (Child, error) {
	return getRecord[Child](ctx, s, schema.ChildPath(id), id, func(c Child) string { return c.ID })
}

// ChildrenOfParent resuelve la lookup parentChildren a legajos completos.
// Entradas del índice sin legajo se saltean (espejo roto, no fatal acá).
func (s *Service) ChildrenOfParent(ctx context.Context, parentID string) ([]Child, error) {
	return s.childrenFromIndex(ctx, schema.ParentChildrenPath(parentID))
}

func (s *Service) ChildrenOfGroup(ctx context.Context, groupID string) ([]Child, error) {
	return s.childrenFromIndex(ctx, schema.GroupChildrenPath(groupID))
}

func (s *Service) GroupsOfTeacher(ctx context.Context, teacherID string) ([]Group, error) {
	idx, err := s.indexKeys(ctx, schema.TeacherGroupsPath(teacherID))
	if err != nil {
		return nil, err
	}
	out := make([]Group, 0, len(idx))
	for _, gid := range idx {
		g, err := s.Group(ctx, gid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Service) childrenFromIndex(ctx context.Context, indexPath string) ([]Child, error) {
	idx, err := s.indexKeys(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	out := make([]Child, 0, len(idx))
	for _, cid := range idx {
		c, err := s.Child(ctx, cid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) indexKeys(ctx context.Context, path string) ([]string, error) {
	v, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// UserProfile lee y valida el perfil de un usuario. Los handlers lo usan para
// autorización fina: el role del token puede quedar viejo, el store no.
func (s *Service) UserProfile(ctx context.Context, uid string) (profile.Profile, error) {
	v, err := s.store.Get(ctx, schema.UserPath(uid))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, uid)
	}
	return profile.Validate(v)
}

func (s *Service) requireRole(ctx context.Context, uid string, role profile.Role) error {
	p, err := s.UserProfile(ctx, uid)
	if err != nil {
		return err
	}
	if p.ProfileRole() != role {
		return fmt.Errorf("%w: user %s is %s, expected %s", ErrInvalidInput, uid, p.ProfileRole(), role)
	}
	return nil
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func getRecord[T any](ctx context.Context, s *Service, path, id string, idOf func(T) string) (T, error) {
	var zero T
	v, err := s.store.Get(ctx, path)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	out, err := decode[T](v)
	if err != nil {
		return zero, err
	}
	// el id del documento debe coincidir con la clave bajo la que vive
	if idOf(out) != id {
		return zero, fmt.Errorf("%w: %s holds id %q", ErrInconsistent, path, idOf(out))
	}
	return out, nil
}

func encode(v any) map[string]any {
	raw, _ := json.Marshal(v)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func decode[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
