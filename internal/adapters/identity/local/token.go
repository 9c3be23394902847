package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nido/internal/domain/profile"
	"nido/internal/ports/auth"
	"nido/internal/schema"
)

const tokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

var _ auth.TokenVerifier = (*Backend)(nil)

type tokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func newTokenIssuer(secret string) *tokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		// sin secret configurado: uno efímero por proceso (solo dev; los
		// tokens mueren con el proceso)
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		key = []byte(hex.EncodeToString(buf))
	}
	return &tokenIssuer{secret: key, now: time.Now}
}

func (t *tokenIssuer) issue(uid, email, role string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"role":  role,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenIssuer) verify(raw string) (auth.Claims, error) {
	parsed, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return auth.Claims{}, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return auth.Claims{}, ErrInvalidToken
	}

	uid, _ := mc["sub"].(string)
	if uid == "" {
		return auth.Claims{}, ErrInvalidToken
	}
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)

	return auth.Claims{UserID: uid, Email: email, Role: role}, nil
}

// IssueToken emite un bearer token para la superficie HTTP. El role se lee
// best-effort del perfil actual; si el perfil no valida, el token sale sin
// role y la autorización fina lo resuelve releyendo el store.
func (b *Backend) IssueToken(ctx context.Context, uid string) (string, error) {
	email := ""
	b.mu.Lock()
	for _, acc := range b.accounts {
		if acc.uid == uid {
			email = acc.email
			break
		}
	}
	b.mu.Unlock()
	if email == "" {
		return "", fmt.Errorf("no account for uid %s", uid)
	}

	role := ""
	if doc, err := b.store.Get(ctx, schema.UserPath(uid)); err == nil {
		if p, err := profile.Validate(doc); err == nil {
			role = string(p.ProfileRole())
		}
	}

	return b.tokens.issue(uid, email, role)
}

// Verify implementa auth.TokenVerifier.
func (b *Backend) Verify(ctx context.Context, token string) (auth.Claims, error) {
	return b.tokens.verify(token)
}
