// Package password wraps adaptive one-way hashing and the composite
// password policy enforced at registration.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest accepted bcrypt cost. Anything weaker is not
// acceptable for credential storage.
const MinCost = 12

// ErrHashFailed wraps bcrypt failures during hashing. Verification
// failures are never surfaced through errors; they are a boolean false.
var ErrHashFailed = errors.New("password hashing failed")

// Hasher produces and verifies bcrypt password hashes with a fixed cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) (*Hasher, error) {
	if cost < MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", MinCost, bcrypt.MaxCost, cost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash derives a salted hash from the plaintext. The plaintext is never
// logged or stored by this package.
func (h *Hasher) Hash(plaintext string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashFailed, err)
	}
	return string(bytes), nil
}

// Verify reports whether plaintext matches the stored hash. All failure
// modes (wrong password, malformed hash) collapse to false so callers
// cannot distinguish them.
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Policy rule identifiers, returned verbatim in validation errors so the
// client can tell the user exactly which rules are unmet.
const (
	RuleMinLength = "password must be at least 8 characters long"
	RuleUppercase = "password must contain at least one uppercase letter"
	RuleLowercase = "password must contain at least one lowercase letter"
	RuleDigit     = "password must contain at least one digit"
	RuleSpecial   = "password must contain at least one special character"
)

// PolicyViolations returns the list of unmet policy rules for the
// candidate password. An empty slice means the password is acceptable.
func PolicyViolations(plaintext string) []string {
	var (
		hasUpper   bool
		hasLower   bool
		hasDigit   bool
		hasSpecial bool
	)
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	var violations []string
	if len(plaintext) < 8 {
		violations = append(violations, RuleMinLength)
	}
	if !hasUpper {
		violations = append(violations, RuleUppercase)
	}
	if !hasLower {
		violations = append(violations, RuleLowercase)
	}
	if !hasDigit {
		violations = append(violations, RuleDigit)
	}
	if !hasSpecial {
		violations = append(violations, RuleSpecial)
	}
	return violations
}
