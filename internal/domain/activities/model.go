package activities

import "fmt"

// Type define los tipos de actividad registrables en el día de un niño.
// @Enum check_in, check_out, meal, nap, diaper, play, learning, incident, photo, other
type Type string

const (
	TypeCheckIn  Type = "check_in"
	TypeCheckOut Type = "check_out"
	TypeMeal     Type = "meal"
	TypeNap      Type = "nap"
	TypeDiaper   Type = "diaper"
	TypePlay     Type = "play"
	TypeLearning Type = "learning"
	TypeIncident Type = "incident"
	TypePhoto    Type = "photo"
	TypeOther    Type = "other"
)

// Mood es el estado de ánimo opcional reportado junto con la actividad.
// @Enum excellent, good, sad, angry, tired
type Mood string

const (
	MoodExcellent Mood = "excellent"
	MoodGood      Mood = "good"
	MoodSad       Mood = "sad"
	MoodAngry     Mood = "angry"
	MoodTired     Mood = "tired"
)

type Details struct {
	// SubType refina el tipo, por ejemplo meal/breakfast o diaper/wet.
	SubType     string   `json:"subType,omitempty"`
	Amount      string   `json:"amount,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Mood        Mood     `json:"mood,omitempty"`
	Description string   `json:"description,omitempty"`
	PhotoPaths  []string `json:"photoPaths,omitempty"`
}

// Activity vive espejada bajo childActivities y groupActivities. Ambas copias
// deben ser byte-idénticas; la clave de fecha se deriva del propio timestamp.
type Activity struct {
	ID        string `json:"id"`
	ChildID   string `json:"childId"`
	GroupID   string `json:"groupId"`
	TeacherID string `json:"teacherId"`
	Type      Type   `json:"type"`

	Timestamp string   `json:"timestamp"` // RFC3339
	Details   *Details `json:"details,omitempty"`

	IsParentVisible bool   `json:"isParentVisible"`
	CreatedAt       string `json:"createdAt"`
}

func (a Activity) validate() error {
	if a.ChildID == "" || a.GroupID == "" || a.TeacherID == "" {
		return fmt.Errorf("%w: activity requires childId, groupId and teacherId", ErrInvalidInput)
	}
	switch a.Type {
	case TypeCheckIn, TypeCheckOut, TypeMeal, TypeNap, TypeDiaper,
		TypePlay, TypeLearning, TypeIncident, TypePhoto, TypeOther:
	default:
		return fmt.Errorf("%w: unknown activity type %q", ErrInvalidInput, a.Type)
	}
	if a.Details != nil {
		switch a.Details.Mood {
		case "", MoodExcellent, MoodGood, MoodSad, MoodAngry, MoodTired:
		default:
			return fmt.Errorf("%w: unknown mood %q", ErrInvalidInput, a.Details.Mood)
		}
	}
	return nil
}
