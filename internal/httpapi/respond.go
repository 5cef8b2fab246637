package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medicore/hospital-api/internal/auth"
)

// Stable machine-readable error codes. TOKEN_EXPIRED is distinct from
// UNAUTHORIZED so clients know to try the refresh endpoint instead of
// sending the user back to the login screen.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeTokenExpired = "TOKEN_EXPIRED"
	codeForbidden    = "FORBIDDEN"
	codeConflict     = "CONFLICT"
	codeNotFound     = "NOT_FOUND"
	codeRateLimited  = "RATE_LIMITED"
	codeInternal     = "INTERNAL_ERROR"
)

type errorEnvelope struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

type successEnvelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, successEnvelope{Message: message, Data: data})
}

// respondError is the single translation point from domain errors to
// HTTP responses. Handlers return domain errors; nothing below this
// layer knows about status codes.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	env := errorEnvelope{
		Error:     codeInternal,
		Message:   "something went wrong",
		Timestamp: time.Now().UTC(),
		Path:      c.Request().URL.Path,
	}

	switch {
	case isValidation(err, &env):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		env.Error = codeUnauthorized
		env.Message = auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrTokenExpired):
		status = http.StatusUnauthorized
		env.Error = codeTokenExpired
		env.Message = auth.ErrTokenExpired.Error()
	case errors.Is(err, auth.ErrTokenInvalid):
		status = http.StatusUnauthorized
		env.Error = codeUnauthorized
		env.Message = auth.ErrTokenInvalid.Error()
	case errors.Is(err, auth.ErrSessionRevoked):
		status = http.StatusUnauthorized
		env.Error = codeUnauthorized
		env.Message = auth.ErrSessionRevoked.Error()
	case errors.Is(err, auth.ErrForbidden):
		status = http.StatusForbidden
		env.Error = codeForbidden
		env.Message = auth.ErrForbidden.Error()
	case errors.Is(err, auth.ErrEmailTaken):
		status = http.StatusConflict
		env.Error = codeConflict
		env.Message = auth.ErrEmailTaken.Error()
	}

	return c.JSON(status, env)
}

func isValidation(err error, env *errorEnvelope) bool {
	ve, ok := auth.AsValidation(err)
	if !ok {
		return false
	}
	env.Error = codeValidation
	env.Message = "request validation failed"
	env.Details = ve.Violations
	return true
}

// httpErrorHandler keeps echo's own errors (404, 405, malformed JSON)
// inside the same envelope the domain errors use.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := codeInternal
	message := "something went wrong"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch status {
		case http.StatusNotFound:
			code = codeNotFound
			message = "resource not found"
		case http.StatusMethodNotAllowed:
			code = codeNotFound
			message = "method not allowed"
		case http.StatusBadRequest:
			code = codeValidation
			message = "malformed request body"
		default:
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}
	}

	_ = c.JSON(status, errorEnvelope{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      c.Request().URL.Path,
	})
}
