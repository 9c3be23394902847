package profile

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError acumula todos los problemas encontrados en un documento,
// no solo el primero. Más útil para diagnóstico de data rota en el store.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + strings.Join(e.Issues, "; ")
}

// Validate es la única puerta por la que pasa todo perfil leído o escrito.
// Discrimina por role, aplica defaults de la variante y valida estructura y
// reglas de negocio. Un documento que no matchea exactamente una variante se
// rechaza; no existen perfiles parciales o ambiguos válidos.
func Validate(v any) (Profile, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ValidationError{Issues: []string{"document is not an object"}}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, &ValidationError{Issues: []string{"document is not serializable: " + err.Error()}}
	}

	role, _ := m["role"].(string)

	var issues []string

	switch Role(role) {
	case RoleTeacher:
		var t Teacher
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, &ValidationError{Issues: []string{"malformed teacher document: " + err.Error()}}
		}
		applyPreferenceDefaults(&t.Base, m)
		issues = validateBase(t.Base)
		return finish(t, issues)

	case RoleParent:
		var p Parent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &ValidationError{Issues: []string{"malformed parent document: " + err.Error()}}
		}
		applyPreferenceDefaults(&p.Base, m)
		issues = validateBase(p.Base)
		// childrenIds es requerido para parent (puede ser vacío, no ausente)
		if _, present := m["childrenIds"]; !present || p.ChildrenIDs == nil {
			issues = append(issues, "childrenIds is required for role parent")
		}
		return finish(p, issues)

	case RoleManager:
		var mg Manager
		if err := json.Unmarshal(raw, &mg); err != nil {
			return nil, &ValidationError{Issues: []string{"malformed manager document: " + err.Error()}}
		}
		applyPreferenceDefaults(&mg.Base, m)
		// canManageStaff defaultea a true cuando el campo no viene
		if _, present := m["canManageStaff"]; !present {
			mg.CanManageStaff = true
		}
		issues = validateBase(mg.Base)
		return finish(mg, issues)
	}

	return nil, &ValidationError{
		Issues: []string{fmt.Sprintf("role must be one of teacher|parent|manager, got %q", role)},
	}
}

func finish(p Profile, issues []string) (Profile, error) {
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return p, nil
}

func validateBase(b Base) []string {
	var issues []string

	if strings.TrimSpace(b.ID) == "" {
		issues = append(issues, "id is required")
	}

	if addr, err := mail.ParseAddress(b.Email); err != nil || addr.Address != b.Email {
		issues = append(issues, fmt.Sprintf("email %q is not valid", b.Email))
	}

	if utf8.RuneCountInString(b.DisplayName) < 2 {
		issues = append(issues, "displayName must have at least 2 characters")
	}

	if _, err := time.Parse(time.RFC3339, b.CreatedAt); err != nil {
		issues = append(issues, "createdAt must be an ISO-8601 datetime")
	}
	if _, err := time.Parse(time.RFC3339, b.UpdatedAt); err != nil {
		issues = append(issues, "updatedAt must be an ISO-8601 datetime")
	}

	if b.AvatarURL != "" {
		u, err := url.Parse(b.AvatarURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, "avatarUrl must be an absolute http(s) URL")
		}
	}

	if p := b.Preferences; p != nil {
		switch p.Theme {
		case ThemeLight, ThemeDark, ThemeSystem:
		default:
			issues = append(issues, fmt.Sprintf("preferences.theme %q is not valid", p.Theme))
		}
	}

	return issues
}

// applyPreferenceDefaults completa preferences.language cuando el documento
// trae preferences pero sin language.
func applyPreferenceDefaults(b *Base, m map[string]any) {
	if b.Preferences == nil {
		return
	}
	prefs, _ := m["preferences"].(map[string]any)
	if prefs == nil {
		return
	}
	if _, present := prefs["language"]; !present {
		b.Preferences.Language = DefaultLanguage
	}
}

// Encode serializa un perfil al árbol JSON que se persiste en /users/{uid}.
// El discriminante role viaja en el propio documento.
func Encode(p Profile) (map[string]any, error) {
	if p == nil {
		return nil, fmt.Errorf("nil profile")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return m, nil
}
