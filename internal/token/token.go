package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired means the token was well-formed and correctly signed
	// but its expiry has passed. Clients holding a refresh token should
	// re-authenticate through the refresh endpoint.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other verification failure: bad signature,
	// wrong issuer or audience, malformed payload, wrong token class.
	ErrInvalid = errors.New("invalid token")
)

// sessionIDBytes gives 256 bits of entropy per session id.
const sessionIDBytes = 32

// Claims is the signed assertion carried by both token classes.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Config holds signing secrets and expiry policy. Access and refresh
// secrets must differ so one class can never verify as the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and verifies the access/refresh token pair.
type Manager struct {
	config Config
	now    func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// WithNow overrides the clock, for tests.
func (m *Manager) WithNow(now func() time.Time) *Manager {
	m.now = now
	return m
}

// AccessTTL reports the configured access token lifetime, for the
// expiresIn hint returned to clients.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Payload is the caller-supplied identity carried into the token.
type Payload struct {
	AccountID string
	Email     string
	Role      string
	SessionID string
}

// IssueAccess signs a short-lived access token for the payload.
func (m *Manager) IssueAccess(p Payload) (string, error) {
	return m.issue(p, m.config.AccessSecret, m.config.AccessTTL)
}

// IssueRefresh signs a long-lived refresh token for the payload.
func (m *Manager) IssueRefresh(p Payload) (string, error) {
	return m.issue(p, m.config.RefreshSecret, m.config.RefreshTTL)
}

func (m *Manager) issue(p Payload, secret []byte, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Email:     p.Email,
		Role:      p.Role,
		SessionID: p.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.AccountID,
			Issuer:    m.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token's signature, issuer, audience,
// and expiry, returning the embedded claims.
func (m *Manager) VerifyAccess(raw string) (*Claims, error) {
	return m.verify(raw, m.config.AccessSecret)
}

// VerifyRefresh validates a refresh token. A structurally valid refresh
// token is still insufficient on its own: callers must confirm its
// session id is live before honoring it.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	return m.verify(raw, m.config.RefreshSecret)
}

func (m *Manager) verify(raw string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// NewSessionID returns a cryptographically random, URL-safe session id.
// The id is the correlation key between token payloads and the session
// store; its liveness check is what makes remote revocation possible.
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ExtractBearer parses an Authorization header of the form
// "Bearer <token>". Malformed headers yield ok=false, never an error.
func ExtractBearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", false
	}
	return tok, true
}
