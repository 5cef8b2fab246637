package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medicore/hospital-api/internal/account"
	"github.com/medicore/hospital-api/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type accountView struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Role      account.Role `json:"role"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Phone     string       `json:"phone,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type authView struct {
	User         accountView `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
}

func viewOf(acc *account.Account) accountView {
	return accountView{
		ID:        acc.ID,
		Email:     acc.Email,
		Role:      acc.Role,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		Phone:     acc.Phone,
		CreatedAt: acc.CreatedAt,
	}
}

func authViewOf(result *auth.AuthResult) authView {
	return authView{
		User:         viewOf(result.Account),
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
	}
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, &auth.ValidationError{Violations: []string{"request body must be valid JSON"}})
	}

	result, err := s.auth.Register(c.Request().Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "account created", authViewOf(result))
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, &auth.ValidationError{Violations: []string{"request body must be valid JSON"}})
	}

	result, err := s.auth.Login(c.Request().Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "login successful", authViewOf(result))
}

func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return respondError(c, &auth.ValidationError{Violations: []string{"refreshToken is required"}})
	}

	pair, err := s.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "token refreshed", pair)
}

func (s *Server) handleLogout(c echo.Context) error {
	identity := identityFrom(c)
	if err := s.auth.Logout(c.Request().Context(), identity); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "logged out", nil)
}

func (s *Server) handleLogoutAll(c echo.Context) error {
	identity := identityFrom(c)
	n, err := s.auth.LogoutAll(c.Request().Context(), identity)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, fmt.Sprintf("revoked %d sessions", n), map[string]int64{"revoked": n})
}

func (s *Server) handleMe(c echo.Context) error {
	identity := identityFrom(c)
	return respond(c, http.StatusOK, "authenticated", map[string]string{
		"id":        identity.AccountID,
		"email":     identity.Email,
		"role":      string(identity.Role),
		"sessionId": identity.SessionID,
	})
}

type sessionView struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

func (s *Server) handleSessions(c echo.Context) error {
	identity := identityFrom(c)
	sessions, err := s.auth.Sessions(c.Request().Context(), identity)
	if err != nil {
		return respondError(c, err)
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{
			ID:        sess.ID,
			IP:        sess.IP,
			UserAgent: sess.UserAgent,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			Current:   sess.ID == identity.SessionID,
		})
	}
	return respond(c, http.StatusOK, "active sessions", views)
}

func (s *Server) handleForceLogout(c echo.Context) error {
	identity := identityFrom(c)
	accountID := c.Param("id")

	n, err := s.auth.ForceLogout(c.Request().Context(), identity, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorEnvelope{
				Error:     codeNotFound,
				Message:   "account not found",
				Timestamp: time.Now().UTC(),
				Path:      c.Request().URL.Path,
			})
		}
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, fmt.Sprintf("revoked %d sessions", n), map[string]int64{"revoked": n})
}

// handleHealth reports liveness plus whether the session cache is
// reachable. The service stays up without the cache, in degraded mode,
// so a cache outage is reported but does not fail the check.
func (s *Server) handleHealth(c echo.Context) error {
	type health struct {
		Status string `json:"status"`
		Cache  string `json:"cache"`
	}

	h := health{Status: "ok", Cache: "up"}
	if err := s.sessions.Ping(c.Request().Context()); err != nil {
		h.Status = "degraded"
		h.Cache = "down"
	}
	return c.JSON(http.StatusOK, h)
}
