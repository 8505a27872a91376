package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/auth"
	"github.com/schoolhub/backend/core/user"
)

type (
	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
	}

	Deps struct {
		Auth       *auth.Service
		Users      *user.Service
		Tokens     *auth.TokenIssuer
		Logger     core.Logger
		Translator ut.Translator
		Metrics    *Metrics
		DBEngine   string
	}

	Server struct {
		opts     Options
		deps     *Deps
		app      *echo.Echo
		routes   []route
		errors   chan error
		shutdown chan os.Signal
	}
)

// NewServer builds the API server and registers every route.
func NewServer(opts Options, deps *Deps) *Server {
	s := &Server{
		opts:     opts,
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if s.deps.Metrics == nil {
		s.deps.Metrics = NewMetrics("schoolhub")
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func NewServerFromConfig(conf *core.Config, deps *Deps) *Server {
	return NewServer(Options{
		Address:        conf.Server.Address,
		Debug:          conf.Debug,
		TestMode:       conf.TestMode,
		DisableReqLogs: conf.Server.DisableRequestLogs,
	}, deps)
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.opts.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.deps.Metrics.middleware)

	s.routes = s.routeTable()
	for _, r := range s.routes {
		s.app.Add(r.Method, r.Path, r.Handler, s.guards(r)...)
	}
}

// guards returns the middleware protecting r, outermost first.
func (s *Server) guards(r route) []echo.MiddlewareFunc {
	var mw []echo.MiddlewareFunc
	switch {
	case r.Auth || len(r.Roles) > 0:
		mw = append(mw, echojwt.WithConfig(appJWTConfig(s.deps.Tokens)), s.activeUser)
	case r.OptionalAuth:
		mw = append(mw, echojwt.WithConfig(optionalIdentity(s.deps.Tokens)))
	}
	if len(r.Roles) > 0 {
		mw = append(mw, requireRoles(r.Roles...))
	}
	return mw
}

// Routes lists the registered routes and their access rules.
func (s *Server) Routes() []RouteInfo {
	infos := make([]RouteInfo, 0, len(s.routes))
	for _, r := range s.routes {
		infos = append(infos, r.info())
	}
	return infos
}

// Start serves until the server is shut down. Unexpected failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}
