// Package auth is the orchestrator of the authentication core. It owns
// the register, login, logout, refresh, and authenticate flows, and
// composes the password hasher, token manager, session store, rate
// limiter, and audit stream into one coherent surface. Handlers call
// this package; this package calls everything else.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-api/internal/account"
	"github.com/medicore/hospital-api/internal/audit"
	"github.com/medicore/hospital-api/internal/password"
	"github.com/medicore/hospital-api/internal/session"
	"github.com/medicore/hospital-api/internal/token"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// SessionLimiter is the strict-limiter hook the service uses to restore
// a caller's attempt budget after a successful login.
type SessionLimiter interface {
	Reset(ctx context.Context, key string) error
}

// Service implements the authentication flows.
type Service struct {
	accounts account.Store
	sessions *session.Store
	tokens   *token.Manager
	hasher   *password.Hasher
	strict   SessionLimiter
	audit    *audit.Recorder
	log      zerolog.Logger

	sessionTTL time.Duration
	now        func() time.Time
}

// Config wires the service's collaborators. SessionTTL bounds server-side
// session lifetime and normally equals the refresh token TTL: a session
// must never outlive the last token that can act on it.
type Config struct {
	Accounts   account.Store
	Sessions   *session.Store
	Tokens     *token.Manager
	Hasher     *password.Hasher
	Strict     SessionLimiter
	Audit      *audit.Recorder
	Log        zerolog.Logger
	SessionTTL time.Duration
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Accounts == nil || cfg.Sessions == nil || cfg.Tokens == nil || cfg.Hasher == nil {
		return nil, errors.New("auth service requires accounts, sessions, tokens, and hasher")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("auth service requires a positive session TTL")
	}
	return &Service{
		accounts:   cfg.Accounts,
		sessions:   cfg.Sessions,
		tokens:     cfg.Tokens,
		hasher:     cfg.Hasher,
		strict:     cfg.Strict,
		audit:      cfg.Audit,
		log:        cfg.Log.With().Str("component", "auth").Logger(),
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}, nil
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	AccountID string
	Email     string
	Role      account.Role
	SessionID string
}

// TokenPair is the issued access/refresh pair plus the access expiry the
// client should schedule its refresh around.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthResult is the outcome of register and login: the account (hash
// stripped), the token pair, and the session backing them.
type AuthResult struct {
	Account   *account.Account
	Tokens    TokenPair
	SessionID string
}

// RegisterInput carries everything registration needs, including the
// client metadata snapshotted onto the initial session.
type RegisterInput struct {
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
	Phone     string
	IP        string
	UserAgent string
}

// Register validates the input, creates the account, and logs the new
// user straight in: registration that ends with "now go log in" is a
// worse flow for no security gain.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if ve := validateRegistration(in); ve != nil {
		s.record(audit.Event{Name: audit.EventRegister, Email: in.Email, IP: in.IP, Reason: "validation failed"})
		return nil, ve
	}
	role, _ := account.ParseRole(in.Role)

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := s.now()
	acc := &account.Account{
		ID:           uuid.NewString(),
		Email:        account.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			s.record(audit.Event{Name: audit.EventRegister, Email: acc.Email, IP: in.IP, Reason: "duplicate email"})
			return nil, ErrEmailTaken
		}
		s.log.Error().Err(err).Msg("account create failed")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	result, err := s.establishSession(ctx, acc, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}
	s.record(audit.Event{
		Name: audit.EventRegister, Success: true,
		AccountID: acc.ID, Email: acc.Email, SessionID: result.SessionID,
		IP: in.IP, UserAgent: in.UserAgent,
		Metadata: map[string]string{"role": string(acc.Role)},
	})
	return result, nil
}

// LoginInput carries login credentials and client metadata.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Login verifies credentials and establishes a fresh session. Unknown
// email, inactive account, and wrong password are indistinguishable to
// the caller; the audit stream records the real reason.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := account.NormalizeEmail(in.Email)

	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.record(audit.Event{Name: audit.EventLogin, Email: email, IP: in.IP, Reason: "unknown email"})
			return nil, ErrInvalidCredentials
		}
		s.log.Error().Err(err).Msg("account lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !acc.IsActive {
		s.record(audit.Event{Name: audit.EventLogin, AccountID: acc.ID, Email: email, IP: in.IP, Reason: "account inactive"})
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(in.Password, acc.PasswordHash) {
		s.record(audit.Event{Name: audit.EventLogin, AccountID: acc.ID, Email: email, IP: in.IP, Reason: "wrong password"})
		return nil, ErrInvalidCredentials
	}

	result, err := s.establishSession(ctx, acc, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	// A successful login restores the caller's strict-limiter budget so
	// a user who fumbled their password a few times is not left blocked.
	if s.strict != nil && in.IP != "" {
		if err := s.strict.Reset(ctx, in.IP+":login"); err != nil {
			s.log.Warn().Err(err).Msg("strict limiter reset failed")
		}
	}

	s.record(audit.Event{
		Name: audit.EventLogin, Success: true,
		AccountID: acc.ID, Email: acc.Email, SessionID: result.SessionID,
		IP: in.IP, UserAgent: in.UserAgent,
	})
	return result, nil
}

// Logout revokes the caller's session. Access tokens referencing it keep
// verifying cryptographically but fail the liveness check from now on.
func (s *Service) Logout(ctx context.Context, identity *Identity) error {
	if err := s.sessions.Delete(ctx, identity.SessionID); err != nil {
		s.log.Error().Err(err).Str("session_id", identity.SessionID).Msg("session delete failed")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	s.record(audit.Event{
		Name: audit.EventLogout, Success: true,
		AccountID: identity.AccountID, Email: identity.Email, SessionID: identity.SessionID,
	})
	return nil
}

// LogoutAll revokes every session belonging to the caller, on all
// devices, and returns how many were revoked.
func (s *Service) LogoutAll(ctx context.Context, identity *Identity) (int64, error) {
	n, err := s.sessions.DeleteAllForAccount(ctx, identity.AccountID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", identity.AccountID).Msg("bulk session delete failed")
		return 0, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	s.record(audit.Event{
		Name: audit.EventLogoutAll, Success: true,
		AccountID: identity.AccountID, Email: identity.Email,
		Metadata: map[string]string{"revoked": fmt.Sprintf("%d", n)},
	})
	return n, nil
}

// ForceLogout revokes every session of another account. Reserved for
// administrators; the actor is recorded on the audit trail.
func (s *Service) ForceLogout(ctx context.Context, actor *Identity, accountID string) (int64, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return 0, account.ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	n, err := s.sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("forced session delete failed")
		return 0, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	s.record(audit.Event{
		Name: audit.EventLogoutAll, Success: true,
		AccountID: accountID,
		Metadata: map[string]string{
			"actor":   actor.AccountID,
			"revoked": fmt.Sprintf("%d", n),
			"forced":  "true",
		},
	})
	return n, nil
}

// Sessions lists the caller's live sessions across devices.
func (s *Service) Sessions(ctx context.Context, identity *Identity) ([]*session.Session, error) {
	sessions, err := s.sessions.ListByAccount(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return sessions, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token's signature alone is not enough: its session must still
// be live, which is what makes logout effective against stolen refresh
// tokens. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.record(audit.Event{Name: audit.EventRefresh, Reason: "refresh token expired"})
			return nil, ErrTokenExpired
		}
		s.record(audit.Event{Name: audit.EventRefresh, Reason: "refresh token invalid"})
		return nil, ErrTokenInvalid
	}

	live, err := s.sessions.Exists(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !live {
		s.record(audit.Event{Name: audit.EventRefresh, AccountID: claims.Subject, SessionID: claims.SessionID, Reason: "session revoked"})
		return nil, ErrSessionRevoked
	}

	access, err := s.tokens.IssueAccess(token.Payload{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("access token issue failed")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.record(audit.Event{
		Name: audit.EventRefresh, Success: true,
		AccountID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID,
	})
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Authenticate resolves a bearer access token into a caller identity.
// Four gates, in order: signature and expiry, session liveness, account
// existence, account active. Each failure is reported distinctly enough
// for the client to act on but never leaks more than it must.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	raw, ok := token.ExtractBearer(authorization)
	if !ok {
		return nil, ErrTokenInvalid
	}

	claims, err := s.tokens.VerifyAccess(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		s.record(audit.Event{Name: audit.EventAuthenticate, Reason: "access token invalid"})
		return nil, ErrTokenInvalid
	}

	live, err := s.sessions.Exists(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !live {
		s.record(audit.Event{Name: audit.EventAuthenticate, AccountID: claims.Subject, SessionID: claims.SessionID, Reason: "session revoked"})
		return nil, ErrSessionRevoked
	}

	// The account state is re-checked on every request: deactivating an
	// account must cut off its outstanding tokens immediately, not at
	// their next expiry.
	acc, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.record(audit.Event{Name: audit.EventAuthenticate, AccountID: claims.Subject, Reason: "account gone"})
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !acc.IsActive {
		s.record(audit.Event{Name: audit.EventAuthenticate, AccountID: acc.ID, Reason: "account inactive"})
		return nil, ErrSessionRevoked
	}

	return &Identity{
		AccountID: acc.ID,
		Email:     acc.Email,
		Role:      acc.Role,
		SessionID: claims.SessionID,
	}, nil
}

// Authorize checks the identity's role against the allowed set. An empty
// set means any authenticated caller passes.
func (s *Service) Authorize(identity *Identity, allowed ...account.Role) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, role := range allowed {
		if identity.Role == role {
			return nil
		}
	}
	s.record(audit.Event{
		Name:      audit.EventRoleDenied,
		AccountID: identity.AccountID,
		Email:     identity.Email,
		Metadata: map[string]string{
			"attempted_role": string(identity.Role),
			"required_roles": joinRoles(allowed),
		},
	})
	return ErrForbidden
}

func (s *Service) establishSession(ctx context.Context, acc *account.Account, ip, userAgent string) (*AuthResult, error) {
	sessionID, err := token.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := s.now()
	sess := &session.Session{
		ID:        sessionID,
		AccountID: acc.ID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		s.log.Error().Err(err).Msg("session persist failed")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	payload := token.Payload{
		AccountID: acc.ID,
		Email:     acc.Email,
		Role:      string(acc.Role),
		SessionID: sessionID,
	}
	access, err := s.tokens.IssueAccess(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refresh, err := s.tokens.IssueRefresh(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sanitized := *acc
	sanitized.PasswordHash = ""
	return &AuthResult{
		Account: &sanitized,
		Tokens: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		},
		SessionID: sessionID,
	}, nil
}

func (s *Service) record(ev audit.Event) {
	if s.audit != nil {
		s.audit.Record(ev)
	}
}

func validateRegistration(in RegisterInput) *ValidationError {
	var violations []string

	email := account.NormalizeEmail(in.Email)
	if email == "" {
		violations = append(violations, "email is required")
	} else if !emailPattern.MatchString(email) {
		violations = append(violations, "email is not a valid address")
	}

	violations = append(violations, password.PolicyViolations(in.Password)...)

	if _, ok := account.ParseRole(in.Role); !ok {
		violations = append(violations, "role must be one of "+joinRoles(account.Roles()))
	}
	if strings.TrimSpace(in.FirstName) == "" {
		violations = append(violations, "first name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		violations = append(violations, "last name is required")
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func joinRoles(roles []account.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
