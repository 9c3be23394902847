package records

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

// Gender define el sexo registrado de un niño.
// @Enum male, female, other
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

const maxNotesLen = 1000

var colorCodeRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Facility es la institución que agrupa salas, niños y personal.
type Facility struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Group es una sala dentro de una institución. Los niños pertenecen por
// membresía (currentGroupId + lookup groupChildren), no por contención.
type Group struct {
	ID         string `json:"id"`
	FacilityID string `json:"facilityId"`
	Name       string `json:"name"`

	// Color de la sala en la UI, formato #RRGGBB.
	ColorCode string `json:"colorCode,omitempty"`

	TeacherIDs map[string]bool `json:"teacherIds,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Child es el legajo de un niño. parentIds es el lado forward del espejo
// parentChildren; currentGroupId el de groupChildren.
type Child struct {
	ID         string `json:"id"`
	FacilityID string `json:"facilityId"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	BirthDate string `json:"birthDate"` // YYYY-MM-DD
	Gender    Gender `json:"gender,omitempty"`
	Notes     string `json:"notes,omitempty"`

	Allergies []string `json:"allergies,omitempty"`

	CurrentGroupID string          `json:"currentGroupId,omitempty"`
	ParentIDs      map[string]bool `json:"parentIds"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (f Facility) validate() error {
	if f.ID == "" || f.Name == "" {
		return fmt.Errorf("%w: facility requires id and name", ErrInvalidInput)
	}
	return nil
}

func (g Group) validate() error {
	if g.ID == "" || g.FacilityID == "" || g.Name == "" {
		return fmt.Errorf("%w: group requires id, facilityId and name", ErrInvalidInput)
	}
	if g.ColorCode != "" && !colorCodeRe.MatchString(g.ColorCode) {
		return fmt.Errorf("%w: colorCode must match #RRGGBB", ErrInvalidInput)
	}
	return nil
}

func (c Child) validate() error {
	if c.ID == "" || c.FacilityID == "" {
		return fmt.Errorf("%w: child requires id and facilityId", ErrInvalidInput)
	}
	if c.FirstName == "" || c.LastName == "" {
		return fmt.Errorf("%w: child requires firstName and lastName", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", c.BirthDate); err != nil {
		return fmt.Errorf("%w: birthDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	switch c.Gender {
	case "", GenderMale, GenderFemale, GenderOther:
	default:
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, c.Gender)
	}
	if utf8.RuneCountInString(c.Notes) > maxNotesLen {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, maxNotesLen)
	}
	return nil
}
