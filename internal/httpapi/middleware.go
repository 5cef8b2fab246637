package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medicore/hospital-api/internal/account"
	"github.com/medicore/hospital-api/internal/audit"
	"github.com/medicore/hospital-api/internal/auth"
	"github.com/medicore/hospital-api/internal/rate"
	"github.com/medicore/hospital-api/internal/token"
)

const identityKey = "auth.identity"

// identityFrom returns the authenticated identity attached by
// requireAuth, or nil on unauthenticated routes.
func identityFrom(c echo.Context) *auth.Identity {
	id, _ := c.Get(identityKey).(*auth.Identity)
	return id
}

// requireAuth resolves the bearer token into an identity and attaches it
// to the request context. Everything behind it can assume a live,
// active, role-bearing caller.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := s.auth.Authenticate(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return respondError(c, err)
		}
		c.Set(identityKey, identity)
		return next(c)
	}
}

// requireRole gates a route to the given roles. Must run behind
// requireAuth.
func (s *Server) requireRole(roles ...account.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := identityFrom(c)
			if identity == nil {
				return respondError(c, auth.ErrTokenInvalid)
			}
			if err := s.auth.Authorize(identity, roles...); err != nil {
				return respondError(c, err)
			}
			return next(c)
		}
	}
}

// globalRateLimit applies the per-caller budget across the whole auth
// surface. Authenticated callers are keyed by account so an office NAT
// does not share one bucket; anonymous traffic falls back to the IP.
func (s *Server) globalRateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := "ip:" + c.RealIP()
		if raw, ok := token.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization)); ok {
			if claims, err := s.tokens.VerifyAccess(raw); err == nil {
				key = "acct:" + claims.Subject
			}
		}
		return s.admit(c, next, s.global, key)
	}
}

// strictRateLimit applies the tight per-IP budget on credential-guessing
// surfaces, keyed by IP and endpoint so a login block does not spill
// into register.
func (s *Server) strictRateLimit(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return s.admit(c, next, s.strict, c.RealIP()+":"+endpoint)
		}
	}
}

func (s *Server) admit(c echo.Context, next echo.HandlerFunc, limiter *rate.Limiter, key string) error {
	res := limiter.Allow(c.Request().Context(), key)

	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

	if res.Allowed {
		return next(c)
	}

	retryAfter := int(res.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	h.Set("Retry-After", strconv.Itoa(retryAfter))

	s.record(audit.Event{
		Name:   audit.EventRateLimited,
		IP:     c.RealIP(),
		Path:   c.Request().URL.Path,
		Reason: "rate limit exceeded",
	})
	return c.JSON(http.StatusTooManyRequests, errorEnvelope{
		Error:     codeRateLimited,
		Message:   "too many requests, try again later",
		Timestamp: time.Now().UTC(),
		Path:      c.Request().URL.Path,
	})
}
