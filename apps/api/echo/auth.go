package echoapi

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core/auth"
	"github.com/schoolhub/backend/core/user"
)

const (
	contextIdentityKey = "identity"
	contextUserKey     = "user"
	bearerLookup       = "header:" + echo.HeaderAuthorization + ":Bearer "
)

// appJWTConfig reads "Authorization: Bearer <token>" and stores the verified
// access token's auth.Identity in the context.
func appJWTConfig(tokens *auth.TokenIssuer) echojwt.Config {
	return echojwt.Config{
		TokenLookup: bearerLookup,
		ContextKey:  contextIdentityKey,
		ParseTokenFunc: func(_ echo.Context, token string) (interface{}, error) {
			return tokens.Verify(token, auth.PurposeAccess)
		},
		ErrorHandler: jwtError,
	}
}

// jwtError keeps the verifier's error for bad tokens; absent or non-bearer headers are errMissingToken.
func jwtError(_ echo.Context, err error) error {
	var parseErr *echojwt.TokenParsingError
	if errors.As(err, &parseErr) {
		return parseErr.Err
	}
	return errMissingToken
}

// optionalIdentity is appJWTConfig for routes open to anonymous callers:
// a verified bearer sets the identity, anything else is ignored.
func optionalIdentity(tokens *auth.TokenIssuer) echojwt.Config {
	conf := appJWTConfig(tokens)
	conf.ErrorHandler = func(echo.Context, error) error { return nil }
	conf.ContinueOnIgnoredError = true
	return conf
}

// activeUser runs after the JWT middleware and rejects identities whose user no longer exists.
func (s *Server) activeUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, ok := contextIdentity(ctx)
		if !ok {
			return errMissingToken
		}
		usr, err := s.deps.Auth.ValidateUser(ctx.Request().Context(), id.UserID)
		if err != nil {
			return err
		}
		ctx.Set(contextUserKey, usr)
		return next(ctx)
	}
}

// requireRoles admits only identities whose role is one of roles.
// It must run after the JWT middleware.
func requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, ok := contextIdentity(ctx)
			if !ok || !id.Role.In(roles...) {
				return errForbidden
			}
			return next(ctx)
		}
	}
}

func contextIdentity(ctx echo.Context) (auth.Identity, bool) {
	id, ok := ctx.Get(contextIdentityKey).(auth.Identity)
	return id, ok
}

func contextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}

type authApi struct {
	svc     *auth.Service
	metrics *Metrics
}

type (
	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	refreshRequest struct {
		RefreshToken string `json:"refreshToken"`
	}
)

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	res, err := api.svc.Register(ctx.Request().Context(), data)
	api.metrics.observeAuth("register", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *authApi) login(ctx echo.Context) error {
	var data loginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to loginRequest")
	}
	res, err := api.svc.Login(ctx.Request().Context(), data.Email, data.Password)
	api.metrics.observeAuth("login", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// refresh identifies the caller by the refresh token's subject. A bearer access
// token that still verifies must belong to the same user; an expired one is ignored
// by optionalIdentity.
func (api *authApi) refresh(ctx echo.Context) error {
	var data refreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to refreshRequest")
	}
	claimed, err := api.svc.Tokens.Verify(data.RefreshToken, auth.PurposeRefresh)
	if err != nil {
		api.metrics.observeAuth("refresh", err)
		return auth.ErrAccessDenied
	}
	if caller, ok := contextIdentity(ctx); ok && caller.UserID != claimed.UserID {
		api.metrics.observeAuth("refresh", auth.ErrAccessDenied)
		return auth.ErrAccessDenied
	}

	pair, err := api.svc.Refresh(ctx.Request().Context(), claimed.UserID, data.RefreshToken)
	api.metrics.observeAuth("refresh", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pair)
}

func (api *authApi) logout(ctx echo.Context) error {
	id, _ := contextIdentity(ctx)
	err := api.svc.Logout(ctx.Request().Context(), id.UserID)
	api.metrics.observeAuth("logout", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Logout successful"})
}

func (api *authApi) me(ctx echo.Context) error {
	id, _ := contextIdentity(ctx)
	return ctx.JSON(http.StatusOK, id)
}
