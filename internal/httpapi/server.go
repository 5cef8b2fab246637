// Package httpapi is the HTTP boundary of the authentication core. It
// owns routing, rate-limit admission, the auth middleware chain, and the
// translation of domain errors into the response envelope. No business
// rule lives here.
package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-api/internal/account"
	"github.com/medicore/hospital-api/internal/audit"
	"github.com/medicore/hospital-api/internal/auth"
	"github.com/medicore/hospital-api/internal/rate"
	"github.com/medicore/hospital-api/internal/session"
	"github.com/medicore/hospital-api/internal/token"
)

// Server wires handlers, middleware, and the echo instance.
type Server struct {
	echo     *echo.Echo
	auth     *auth.Service
	tokens   *token.Manager
	sessions *session.Store
	global   *rate.Limiter
	strict   *rate.Limiter
	audit    *audit.Recorder
	log      zerolog.Logger
}

// Config carries the server's collaborators.
type Config struct {
	Auth     *auth.Service
	Tokens   *token.Manager
	Sessions *session.Store
	Global   *rate.Limiter
	Strict   *rate.Limiter
	Audit    *audit.Recorder
	Log      zerolog.Logger
}

func NewServer(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		auth:     cfg.Auth,
		tokens:   cfg.Tokens,
		sessions: cfg.Sessions,
		global:   cfg.Global,
		strict:   cfg.Strict,
		audit:    cfg.Audit,
		log:      cfg.Log.With().Str("component", "httpapi").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api/v1/auth", s.globalRateLimit)

	api.POST("/register", s.handleRegister, s.strictRateLimit("register"))
	api.POST("/login", s.handleLogin, s.strictRateLimit("login"))
	api.POST("/refresh", s.handleRefresh)

	authed := api.Group("", s.requireAuth)
	authed.POST("/logout", s.handleLogout)
	authed.POST("/logout-all", s.handleLogoutAll)
	authed.GET("/me", s.handleMe)
	authed.GET("/sessions", s.handleSessions)

	admin := authed.Group("/accounts", s.requireRole(account.RoleAdmin))
	admin.POST("/:id/logout", s.handleForceLogout)
}

// Echo exposes the underlying instance for the main package's
// http.Server wiring and for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves on the given address until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) record(ev audit.Event) {
	if s.audit != nil {
		s.audit.Record(ev)
	}
}
