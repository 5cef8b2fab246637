package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup key.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned when creating an account whose
	// normalized email is already taken.
	ErrDuplicateEmail = errors.New("account email already exists")
)

// Role is one of the fixed portal roles of the hospital system.
type Role string

const (
	RolePatient      Role = "PATIENT"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleReceptionist Role = "RECEPTIONIST"
	RolePharmacist   Role = "PHARMACIST"
	RoleAdmin        Role = "ADMIN"
)

var validRoles = map[Role]struct{}{
	RolePatient:      {},
	RoleDoctor:       {},
	RoleNurse:        {},
	RoleReceptionist: {},
	RolePharmacist:   {},
	RoleAdmin:        {},
}

// ParseRole validates a role string against the fixed set. Matching is
// case-insensitive; the canonical upper-case form is returned.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := validRoles[r]
	return r, ok
}

// Roles returns the full role set, for validation error messages.
func Roles() []Role {
	return []Role{RolePatient, RoleDoctor, RoleNurse, RoleReceptionist, RolePharmacist, RoleAdmin}
}

// Account is the identity record backing authentication. The password
// hash never leaves this package's consumers in serialized form.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	FirstName    string
	LastName     string
	Phone        string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail maps an email to its canonical lookup form. Exactly one
// account may exist per normalized email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store is the credential-store contract consumed by the auth core.
// The relational schema behind it is owned by the persistence layer.
type Store interface {
	Create(ctx context.Context, acc *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}
