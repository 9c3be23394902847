// Package remote verifica bearer tokens contra un proveedor de identidad
// hosteado. Es la alternativa al backend local para deploys donde las cuentas
// viven en un IAM central; implementa el mismo port y se elige desde main.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nido/internal/platform/httpclient"
	"nido/internal/ports/auth"
)

var (
	ErrNotConfigured = errors.New("remote verifier not configured")
	ErrUnauthorized  = errors.New("token rejected by identity provider")
	ErrUpstream      = errors.New("identity provider error")
)

type Config struct {
	BaseURL string
	APIKey  string

	// Header de la API key; vacío usa "X-Api-Key".
	APIKeyHeader string

	Timeout time.Duration
}

type Verifier struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

var _ auth.TokenVerifier = (*Verifier)(nil)

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = "X-Api-Key"
	}

	return &Verifier{
		http:         hc,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: header,
	}, nil
}

// newVerifierWithClient existe para tests (transport inyectado).
func newVerifierWithClient(hc *httpclient.Client, apiKey string) *Verifier {
	return &Verifier{http: hc, apiKey: apiKey, apiKeyHeader: "X-Api-Key"}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrUnauthorized
	}

	var out struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		Role   string `json:"role"`
	}

	err := v.http.DoJSON(ctx, "POST", "/v1/tokens/verify",
		map[string]string{
			v.apiKeyHeader:  v.apiKey,
			"Authorization": "Bearer " + token,
		},
		map[string]string{"token": token},
		&out,
	)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == 401 || httpErr.StatusCode == 403) {
			return auth.Claims{}, ErrUnauthorized
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	out.UserID = strings.TrimSpace(out.UserID)
	if out.UserID == "" {
		return auth.Claims{}, fmt.Errorf("%w: claims missing user id", ErrUpstream)
	}

	return auth.Claims{UserID: out.UserID, Email: out.Email, Role: out.Role}, nil
}
