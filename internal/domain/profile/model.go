package profile

import "time"

// Role discrimina las tres variantes de perfil.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleManager Role = "manager"
)

// Roles enumera todas las variantes válidas. Se usa en validación y en la
// tabla facilityUsers.
var Roles = []Role{RoleTeacher, RoleParent, RoleManager}

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// DefaultLanguage es el locale por defecto cuando el documento no lo trae.
const DefaultLanguage = "pl"

type Preferences struct {
	Theme                string `json:"theme"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	Language             string `json:"language"`
}

// Base agrupa los atributos compartidos por las tres variantes.
// Los timestamps son strings ISO-8601 tal como viven en el store; el
// validador verifica el formato sin re-serializarlos (round-trip sin pérdida).
type Base struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName"`
	FacilityID  string       `json:"facilityId,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	FCMToken    string       `json:"fcmToken,omitempty"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// Profile es la unión discriminada por role. Cada variante implementa los
// tres métodos; agregar un rol nuevo sin implementar Permissions() no
// compila, que es exactamente lo que queremos.
type Profile interface {
	ProfileRole() Role
	Shared() Base
	Permissions() Permissions
}

type Teacher struct {
	Base
	Role             Role            `json:"role"`
	AssignedGroupIDs map[string]bool `json:"assignedGroupIds"`
	Title            string          `json:"title,omitempty"`
}

func (t Teacher) ProfileRole() Role { return RoleTeacher }
func (t Teacher) Shared() Base      { return t.Base }

type Parent struct {
	Base
	Role        Role            `json:"role"`
	ChildrenIDs map[string]bool `json:"childrenIds"`
	IsPayer     bool            `json:"isPayer"`
}

func (p Parent) ProfileRole() Role { return RoleParent }
func (p Parent) Shared() Base      { return p.Base }

type Manager struct {
	Base
	Role           Role `json:"role"`
	CanManageStaff bool `json:"canManageStaff"`
}

func (m Manager) ProfileRole() Role { return RoleManager }
func (m Manager) Shared() Base      { return m.Base }

// NewBase arma el perfil base de un registro nuevo, con las preferencias por
// defecto que usan las pantallas de alta.
func NewBase(email, displayName, facilityID string, now time.Time) Base {
	ts := now.UTC().Format(time.RFC3339)
	return Base{
		ID:          "temp", // se reemplaza por el uid real al crear la cuenta
		Email:       email,
		DisplayName: displayName,
		FacilityID:  facilityID,
		Preferences: &Preferences{
			Theme:                ThemeSystem,
			NotificationsEnabled: true,
			Language:             "en",
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// NewTeacher y NewParent construyen las variantes registrables desde la UI.
// Managers se dan de alta por otro canal, no por el signup público.
func NewTeacher(base Base) Teacher {
	return Teacher{
		Base:             base,
		Role:             RoleTeacher,
		AssignedGroupIDs: map[string]bool{},
		Title:            "Teacher",
	}
}

func NewParent(base Base) Parent {
	return Parent{
		Base:        base,
		Role:        RoleParent,
		ChildrenIDs: map[string]bool{},
		IsPayer:     false,
	}
}

// WithID devuelve una copia del perfil con el id reemplazado. El backend de
// identidad lo usa para estampar el uid real antes de escribir /users/{uid}.
func WithID(p Profile, id string) Profile {
	switch t := p.(type) {
	case Teacher:
		t.ID = id
		return t
	case Parent:
		t.ID = id
		return t
	case Manager:
		t.ID = id
		return t
	}
	return p
}
