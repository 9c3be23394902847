package auth

import "context"

// TokenVerifier verifica un bearer token y devuelve claims o error.
// Lo implementa el backend de identidad que emitió el token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
