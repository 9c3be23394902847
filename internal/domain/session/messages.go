package session

import "nido/internal/errs"

// userMessages traduce códigos técnicos a texto mostrable. El código crudo
// nunca se le muestra al usuario final; queda en Normalized.Raw para
// diagnóstico.
var userMessages = map[string]string{
	// identidad
	"user-not-found":        "No account found with this email address.",
	"wrong-password":        "Incorrect password. Please try again.",
	"invalid-email":         "The email address is not valid.",
	"weak-password":         "Password should be at least 6 characters.",
	"email-already-in-use":  "An account with this email already exists.",
	"operation-not-allowed": "This sign-in method is not enabled.",
	"network-error":         "Network error. Please check your connection.",
	"too-many-requests":     "Too many attempts. Please try again later.",
	"internal-error":        "Something went wrong. Please try again.",
	"unknown-error":         "An unexpected error occurred.",

	// store
	"permission-denied": "You do not have permission to perform this action.",
	"disconnected":      "Connection to the server was lost.",
	"timeout":           "The operation timed out. Please try again.",
	"unavailable":       "The service is temporarily unavailable.",
	"invalid-data":      "Your profile data could not be read.",
	"not-found":         "Your profile could not be found.",
}

const fallbackMessage = "An unexpected error occurred."

// UserMessage devuelve el texto mostrable para un error normalizado.
func UserMessage(n *errs.Normalized) string {
	if n == nil {
		return ""
	}
	if msg, ok := userMessages[n.Type]; ok {
		return msg
	}
	return fallbackMessage
}

// ErrorMessage es el texto mostrable del error vigente, o "" si no hay error.
func (s State) ErrorMessage() string {
	return UserMessage(s.Err)
}
