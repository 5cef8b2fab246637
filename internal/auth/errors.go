package auth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is the uniform login failure. Unknown email,
	// deactivated account, and wrong password all map here so responses
	// cannot be used to enumerate registered emails.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when registering an email that already
	// has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrTokenExpired means the presented token was correctly signed but
	// past its expiry. The HTTP layer gives it a distinct error code so
	// clients know to refresh instead of re-login.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenInvalid covers every other token verification failure.
	ErrTokenInvalid = errors.New("invalid or malformed token")
	// ErrSessionRevoked means the token verified but its session is no
	// longer live: logged out, force-revoked, or expired server-side.
	ErrSessionRevoked = errors.New("session has been revoked or expired")
	// ErrForbidden means the caller is authenticated but their role is
	// not in the allowed set for the operation.
	ErrForbidden = errors.New("insufficient role for this operation")
	// ErrInternal masks unexpected backend failures at the boundary.
	ErrInternal = errors.New("internal error")
)

// ValidationError itemizes every unmet registration rule in one response
// so the client never has to fix-and-resubmit one rule at a time.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// AsValidation unwraps a *ValidationError if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
