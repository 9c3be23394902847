package records

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("record not found")

	// ErrInconsistent indica que el id dentro del documento no coincide con
	// la clave bajo la que está guardado.
	ErrInconsistent = errors.New("record id does not match its path")
)

// PartialWriteError reporta una escritura multi-path que quedó por la mitad:
// el store no tiene transacciones cross-path, así que el caller necesita
// saber qué mitad entró para decidir si reintenta el resto o deshace lo
// escrito. Una falla limpia del primer write NO usa este tipo.
type PartialWriteError struct {
	Written    []string
	FailedPath string
	Err        error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %d path(s) written, failed at %s: %v", len(e.Written), e.FailedPath, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
