package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schoolhub/backend/core/user"
)

type (
	// route declares an endpoint and who may call it.
	// Roles implies Auth; an empty Roles list admits any authenticated user.
	// OptionalAuth admits anonymous callers but reads a valid bearer when present.
	route struct {
		Method       string
		Path         string
		Handler      echo.HandlerFunc
		Auth         bool
		OptionalAuth bool
		Roles        []user.Role
	}

	RouteInfo struct {
		Method string      `json:"method"`
		Path   string      `json:"path"`
		Auth   bool        `json:"auth"`
		Roles  []user.Role `json:"roles,omitempty"`
	}
)

func (r route) info() RouteInfo {
	return RouteInfo{Method: r.Method, Path: r.Path, Auth: r.Auth || len(r.Roles) > 0, Roles: r.Roles}
}

var (
	staff  = []user.Role{user.RoleAdmin, user.RoleTeacher}
	admins = []user.Role{user.RoleAdmin}
)

func (s *Server) routeTable() []route {
	authAPI := &authApi{svc: s.deps.Auth, metrics: s.deps.Metrics}
	userAPI := &userApi{svc: s.deps.Users}
	healthAPI := &healthApi{users: s.deps.Users, engine: s.deps.DBEngine}

	return []route{
		{Method: http.MethodGet, Path: "/", Handler: home},
		{Method: http.MethodGet, Path: "/health", Handler: healthAPI.check},
		{Method: http.MethodGet, Path: "/metrics", Handler: s.deps.Metrics.handler()},

		{Method: http.MethodPost, Path: "/auth/register", Handler: authAPI.register},
		{Method: http.MethodPost, Path: "/auth/login", Handler: authAPI.login},
		{Method: http.MethodPost, Path: "/auth/refresh", Handler: authAPI.refresh, OptionalAuth: true},
		{Method: http.MethodPost, Path: "/auth/logout", Handler: authAPI.logout, Auth: true},
		{Method: http.MethodGet, Path: "/auth/me", Handler: authAPI.me, Auth: true},

		{Method: http.MethodGet, Path: "/users", Handler: userAPI.query, Roles: staff},
		{Method: http.MethodPost, Path: "/users", Handler: userAPI.create, Roles: admins},
		{Method: http.MethodGet, Path: "/users/:id", Handler: userAPI.retrieve, Roles: staff},
		{Method: http.MethodPatch, Path: "/users/:id", Handler: userAPI.update, Roles: admins},
		{Method: http.MethodDelete, Path: "/users/:id", Handler: userAPI.destroy, Roles: admins},
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to SchoolHub API!")
}
