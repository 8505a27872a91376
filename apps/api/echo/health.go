package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type healthApi struct {
	users  pinger
	engine string
}

type healthStatus struct {
	Status   string            `json:"status"`
	Database map[string]string `json:"database"`
}

func (api *healthApi) check(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()

	status, code := "online", http.StatusOK
	if err := api.users.Ping(pingCtx); err != nil {
		status, code = "offline", http.StatusServiceUnavailable
	}
	return ctx.JSON(code, healthStatus{
		Status:   status,
		Database: map[string]string{api.engine: status},
	})
}
