package dig_container_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/apps/api/di/dig"
	echoapi "github.com/schoolhub/backend/apps/api/echo"
	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/auth"
)

func TestNew(t *testing.T) {
	c := dig_container.New(func() (*core.Config, error) {
		conf := core.NewTestConfig()
		conf.Server.DisableRequestLogs = true
		return conf, nil
	})

	err := c.Invoke(func(server *echoapi.Server, authSvc *auth.Service) {
		assert.Nil(t, authSvc.Throttle, "throttling is off by default")

		body := `{"name":"Ana","email":"ana@x.com","password":"secret1"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"online","database":{"memory":"online"}}`, rec.Body.String())
	})
	require.NoError(t, err)
}
