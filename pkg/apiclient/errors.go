package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed request.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

const (
	transportMessage = "Impossible de contacter le serveur. Vérifiez votre connexion."
	decodeMessage    = "Réponse inattendue du serveur."
)

// DefaultTranslations maps known backend messages to customer-facing text.
var DefaultTranslations = map[string]string{
	"User not found":        "Aucun compte trouvé avec cet email.",
	"Authentication failed": "Email ou mot de passe incorrect.",
	"Invalid password":      "Mot de passe incorrect.",
	"Unauthorized":          "Email ou mot de passe incorrect.",
	"Email déjà utilisé":    "Cette adresse email est déjà utilisée. Essayez de vous connecter.",
}

// APIError is the single error shape returned by the client.
type APIError struct {
	Status  int
	Message string
	// Raw is the untranslated message as extracted from the body.
	Raw  string
	Code string
	// Body is the response body as received.
	Body []byte
	Kind Kind
	Err  error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnknown when err is not an
// *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// ValidationError wraps a client-side validation failure.
func ValidationError(err error) *APIError {
	return &APIError{Message: err.Error(), Raw: err.Error(), Kind: KindValidation, Err: err}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	}
	return KindProtocol
}

type errorBody struct {
	Message any `json:"message"`
	Error   any `json:"error"`
	Code    any `json:"code"`
}

// ExtractMessage reads an error body as text and, when it is a JSON object,
// prefers its message then error field. The raw text is kept otherwise.
func ExtractMessage(status int, body []byte) (message, code string) {
	text := strings.TrimSpace(string(body))
	message = text
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if s := stringField(parsed.Message); s != "" {
			message = s
		} else if s := stringField(parsed.Error); s != "" {
			message = s
		}
		code = stringField(parsed.Code)
	}
	if message == "" {
		message = fmt.Sprintf("Erreur %d", status)
	}
	return message, code
}

// ExtractError builds the APIError for a non-2xx response.
func ExtractError(status int, body []byte, translations map[string]string) *APIError {
	raw, code := ExtractMessage(status, body)
	return &APIError{
		Status:  status,
		Message: Translate(raw, translations),
		Raw:     raw,
		Code:    code,
		Body:    body,
		Kind:    kindForStatus(status),
	}
}

// Translate maps msg through translations after trimming. Unknown messages
// pass through.
func Translate(msg string, translations map[string]string) string {
	if translated, ok := translations[strings.TrimSpace(msg)]; ok {
		return translated
	}
	return msg
}

func stringField(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
