package store

import "context"

// Códigos cerrados de error del store. El normalizador clasifica contra esta
// lista; cualquier otra cosa termina en "unknown".
var ErrorCodes = []string{
	"permission-denied",
	"disconnected",
	"timeout",
	"unavailable",
	"invalid-data",
	"not-found",
}

// Store abstrae una base documental realtime direccionada por key-path
// ("/users/abc/preferences"). Los valores son árboles JSON (map[string]any,
// []any, string, float64, bool, nil).
//
// Semántica:
//   - Set(path, nil) borra el subárbol completo en path.
//   - Update aplica un merge superficial de claves sobre path.
//   - Listen entrega el valor actual inmediatamente al suscribirse y después
//     en cada cambio del path o sus descendientes. Dentro de una misma
//     suscripción las entregas están ordenadas; entre suscripciones distintas
//     no hay garantía de orden.
//   - El unsubscribe devuelto es idempotente.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, partial map[string]any) error
	Listen(path string, cb func(value any)) (unsubscribe func())
}
