package errs

import (
	"errors"
	"fmt"
)

// TypeUnknown es el tipo asignado cuando el código no pertenece a la lista
// cerrada (o directamente no se pudo extraer ninguno).
const TypeUnknown = "unknown"

// Normalized es un error de backend reducido a un código de un set cerrado,
// o clasificado como "unknown". Raw conserva el valor original para diagnóstico;
// nunca se muestra al usuario final.
type Normalized struct {
	Type    string
	Message string
	Raw     any
}

func (n *Normalized) Error() string {
	if n.Message != "" {
		return n.Type + ": " + n.Message
	}
	return n.Type
}

// Unwrap permite errors.Is/As sobre el valor original cuando era un error.
func (n *Normalized) Unwrap() error {
	if err, ok := n.Raw.(error); ok {
		return err
	}
	return nil
}

// IsUnknown reporta si el error no matcheó ningún código conocido.
func (n *Normalized) IsUnknown() bool {
	return n.Type == TypeUnknown
}

// Coded es un error portador de código. Es la forma estándar en que los
// adapters (identity, store) arrojan fallas clasificables.
type Coded struct {
	Code string
	Msg  string
}

func NewCoded(code, msg string) *Coded {
	return &Coded{Code: code, Msg: msg}
}

func (e *Coded) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

// Extractor intenta sacar un código string de un valor arbitrario.
type Extractor func(v any) (code string, ok bool)

// DefaultExtractor es la estrategia por defecto: reconoce *Coded (directo o
// envuelto), cualquier error que exponga ErrorCode(), y mapas con clave "code".
func DefaultExtractor(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case *Coded:
		return t.Code, t.Code != ""
	case map[string]any:
		if s, ok := t["code"].(string); ok && s != "" {
			return s, true
		}
		return "", false
	}

	if err, ok := v.(error); ok {
		var coded *Coded
		if errors.As(err, &coded) {
			return coded.Code, coded.Code != ""
		}
		var withCode interface{ ErrorCode() string }
		if errors.As(err, &withCode) {
			c := withCode.ErrorCode()
			return c, c != ""
		}
	}

	return "", false
}

// NewNormalizer construye un normalizador a partir de una estrategia de
// extracción. Se construye una sola vez y se reutiliza componiéndolo sobre
// distintas listas cerradas (sign-in, sign-up, sign-out, store); así cada call
// site mantiene explícito su set de códigos aceptados sin duplicar extracción.
//
// El normalizador resultante nunca paniquea: es la última línea de defensa
// contra valores arbitrarios.
func NewNormalizer(extract Extractor) func(v any, known []string) *Normalized {
	return func(v any, known []string) *Normalized {
		code, ok := extract(v)

		if ok {
			for _, k := range known {
				if code == k {
					return &Normalized{Type: code, Raw: v}
				}
			}
			return &Normalized{
				Type:    TypeUnknown,
				Message: fmt.Sprintf("unexpected error code: %s", code),
				Raw:     v,
			}
		}

		return &Normalized{
			Type:    TypeUnknown,
			Message: "non-standard error value",
			Raw:     v,
		}
	}
}

// Normalize es el normalizador con la estrategia por defecto.
var Normalize = NewNormalizer(DefaultExtractor)
