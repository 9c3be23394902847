package identity

import (
	"context"

	"nido/internal/domain/profile"
	"nido/internal/errs"
)

// Listas cerradas de códigos por operación. La UI mapea mensajes contra estos
// strings, así que se reproducen tal cual; no agregar códigos sin revisar el
// mapeo de mensajes.
var (
	SignInErrors = []string{
		"user-not-found",
		"wrong-password",
		"invalid-email",
		"weak-password",
		"network-error",
		"too-many-requests",
		"internal-error",
	}

	SignUpErrors = []string{
		"email-already-in-use",
		"operation-not-allowed",
		"invalid-email",
		"weak-password",
		"network-error",
		"too-many-requests",
		"internal-error",
	}

	SignOutErrors = []string{
		"internal-error",
		"unknown-error",
	}
)

// User es la identidad mínima que reporta el backend de autenticación.
// El perfil completo vive en el store, no acá.
type User struct {
	UID   string
	Email string
}

// Backend abstrae el proveedor de identidad (sign-in/up/out + observación de
// sesión). Se implementa una vez por backend concreto y se selecciona al
// armar el proceso, nunca por compilación condicional.
//
// Todas las operaciones devuelven nil en éxito o un *errs.Normalized cuyo
// Type pertenece a la lista cerrada de la operación (o "unknown"). Nunca
// paniquean ni propagan errores crudos del backend.
type Backend interface {
	// SignIn autentica y, si funciona, publica la nueva sesión a los
	// observadores registrados.
	SignIn(ctx context.Context, email, password string) *errs.Normalized

	// SignUp crea la cuenta en el backend y DESPUÉS escribe el perfil en
	// /users/{uid}. Si la escritura/validación del perfil falla, borra la
	// cuenta recién creada best-effort (la falla del borrado se traga, no se
	// reporta). No es atómico.
	SignUp(ctx context.Context, email, password string, p profile.Profile) *errs.Normalized

	SignOut(ctx context.Context) *errs.Normalized

	// OnAuthStateChanged registra un observador de sesión. Lo invoca
	// sincrónicamente con la identidad actual (o nil) al registrarse y en
	// cada cambio posterior. El unsubscribe devuelto es idempotente y
	// desregistra de forma permanente.
	OnAuthStateChanged(cb func(u *User)) (unsubscribe func())
}
