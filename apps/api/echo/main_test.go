package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/apps/api/echo"
	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/auth"
	"github.com/schoolhub/backend/core/user"
	"github.com/schoolhub/backend/storage/database/inmem"
	"github.com/schoolhub/backend/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server *echoapi.Server
	repo   user.Repository
	tokens *auth.TokenIssuer
	auth   *auth.Service
	logger *testutil.Logger
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	conf := core.NewTestConfig()
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	events := new(testutil.EventRecorder)
	tokens := auth.NewTokenIssuer(conf.Auth)

	users := user.NewService(repo, testutil.Hasher, events, logger, validate)
	authSvc := auth.NewService(auth.Deps{
		Users:  users,
		Repo:   repo,
		Hasher: testutil.Hasher,
		Tokens: tokens,
		Events: events,
		Logger: logger,
	})

	server := echoapi.NewServer(
		echoapi.Options{TestMode: true, DisableReqLogs: true},
		&echoapi.Deps{
			Auth:       authSvc,
			Users:      users,
			Tokens:     tokens,
			Logger:     logger,
			Translator: translator,
			Metrics:    echoapi.NewMetrics("test"),
			DBEngine:   conf.Database.Engine,
		},
	)
	return testApp{server: server, repo: repo, tokens: tokens, auth: authSvc, logger: logger}
}

// accessToken returns a valid access token for usr without going through login.
func (app testApp) accessToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.tokens.Issue(auth.IdentityOf(usr), auth.PurposeAccess)
	require.NoError(t, err)
	return token
}

func (app testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (tt httpTest) request() *http.Request {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	return newAuthRequest(method, tt.path, tt.token, tt.body)
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(): %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt.request()))
		})
	}
}
