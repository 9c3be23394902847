package auth

// Claims representa la información extraída del token.
// Role viene del perfil al momento de emitir; la autorización fina igual
// relee el perfil del store (el token puede quedar viejo).
type Claims struct {
	UserID string
	Email  string
	Role   string
}
