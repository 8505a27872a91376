package auth

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

var (
	// errors
	ErrInvalidCredentials = core.NewUnauthorizedError("Invalid credentials")
	ErrAccessDenied       = core.NewUnauthorizedError("Access denied")
	ErrUserNotFound       = core.NewUnauthorizedError("User not found")
	ErrTooManyAttempts    = core.NewError(core.KindTooManyRequests, "too many login attempts, try again later")
)

// LoginThrottle counts failed logins per key (the email).
type LoginThrottle interface {
	Blocked(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Response is returned by Register and Login.
type Response struct {
	User user.Profile `json:"user"`
	TokenPair
}

type (
	Deps struct {
		Users    *user.Service
		Repo     user.Repository
		Hasher   user.PasswordHasher
		Tokens   *TokenIssuer
		Throttle LoginThrottle // optional
		Events   core.EventPublisher
		Logger   core.Logger
	}

	Service struct {
		Deps

		dummyOnce sync.Once
		dummyHash string
	}
)

func NewService(deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = core.NewNoopPublisher()
	}
	return &Service{Deps: deps}
}

// Register creates a user with the default role unless one is given, and opens a session.
func (svc *Service) Register(ctx context.Context, nu user.NewUser) (Response, error) {
	usr, err := svc.Users.Register(ctx, nu)
	if err != nil {
		return Response{}, err
	}
	pair, err := svc.openSession(ctx, usr)
	if err != nil {
		// roll back so the email can be registered again
		if derr := svc.Repo.DeleteUser(ctx, usr.ID); derr != nil {
			svc.Logger.Error("removing user after failed registration", errors.Wrap(derr, "deleting user"), usr)
		}
		return Response{}, err
	}
	return Response{User: usr.Profile(), TokenPair: pair}, nil
}

// Login checks the credentials and opens a new session, replacing any previous one.
// Unknown emails and wrong passwords fail with the same ErrInvalidCredentials.
func (svc *Service) Login(ctx context.Context, email, pwd string) (Response, error) {
	email = core.CleanString(email)

	if svc.Throttle != nil {
		blocked, err := svc.Throttle.Blocked(ctx, email)
		if err != nil {
			svc.Logger.Error("checking login throttle", errors.Wrap(err, "checking login throttle"))
		} else if blocked {
			return Response{}, ErrTooManyAttempts
		}
	}

	usr, err := svc.Repo.GetUserByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		if !svc.Hasher.Verify(pwd, usr.PasswordHash) {
			return Response{}, svc.loginFailed(ctx, email)
		}
	case user.ErrNotFound:
		// keep timing close to a wrong password
		svc.Hasher.Verify(pwd, svc.getDummyHash())
		return Response{}, svc.loginFailed(ctx, email)
	default:
		return Response{}, errors.Wrap(err, "finding user by email")
	}

	if svc.Throttle != nil {
		if err := svc.Throttle.Reset(ctx, email); err != nil {
			svc.Logger.Error("resetting login throttle", errors.Wrap(err, "resetting login throttle"), usr)
		}
	}

	pair, err := svc.openSession(ctx, usr)
	if err != nil {
		return Response{}, err
	}
	svc.publish(ctx, core.EventUserLoggedIn, usr)
	return Response{User: usr.Profile(), TokenPair: pair}, nil
}

func (svc *Service) loginFailed(ctx context.Context, email string) error {
	if svc.Throttle != nil {
		if err := svc.Throttle.Fail(ctx, email); err != nil {
			svc.Logger.Error("recording failed login", errors.Wrap(err, "recording failed login"))
		}
	}
	return ErrInvalidCredentials
}

func (svc *Service) getDummyHash() string {
	svc.dummyOnce.Do(func() {
		svc.dummyHash, _ = svc.Hasher.Hash("dummy-password")
	})
	return svc.dummyHash
}

// openSession issues a token pair and overwrites the stored refresh token hash.
func (svc *Service) openSession(ctx context.Context, usr user.User) (TokenPair, error) {
	pair, err := svc.Tokens.IssuePair(IdentityOf(usr))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing tokens")
	}
	if err := svc.Repo.SetRefreshTokenHash(ctx, usr.ID, HashToken(pair.RefreshToken)); err != nil {
		return TokenPair{}, errors.Wrap(err, "storing refresh token hash")
	}
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The stored hash is
// replaced only if it still matches the presented token, so of two concurrent
// refreshes with the same token exactly one succeeds.
func (svc *Service) Refresh(ctx context.Context, userID, refreshToken string) (TokenPair, error) {
	claimed, err := svc.Tokens.Verify(refreshToken, PurposeRefresh)
	if err != nil || claimed.UserID != userID {
		return TokenPair{}, ErrAccessDenied
	}

	usr, err := svc.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return TokenPair{}, ErrAccessDenied
		}
		return TokenPair{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.HasRefreshToken() || !tokenMatchesHash(refreshToken, usr.RefreshTokenHash) {
		return TokenPair{}, ErrAccessDenied
	}

	pair, err := svc.Tokens.IssuePair(IdentityOf(usr))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing tokens")
	}
	err = svc.Repo.SwapRefreshTokenHash(ctx, usr.ID, usr.RefreshTokenHash, HashToken(pair.RefreshToken))
	switch errors.Cause(err) {
	case nil:
		return pair, nil
	case user.ErrRefreshTokenMismatch, user.ErrNotFound:
		return TokenPair{}, ErrAccessDenied
	default:
		return TokenPair{}, errors.Wrap(err, "rotating refresh token hash")
	}
}

// Logout clears the stored refresh token hash. It is idempotent and ignores unknown users.
func (svc *Service) Logout(ctx context.Context, userID string) error {
	err := svc.Repo.SetRefreshTokenHash(ctx, userID, "")
	switch errors.Cause(err) {
	case nil:
		svc.publish(ctx, core.EventUserLoggedOut, user.User{ID: userID})
		return nil
	case user.ErrNotFound:
		return nil
	default:
		return errors.Wrap(err, "clearing refresh token hash")
	}
}

// ValidateUser returns the user behind an authenticated identity.
func (svc *Service) ValidateUser(ctx context.Context, userID string) (user.User, error) {
	usr, err := svc.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

func (svc *Service) publish(ctx context.Context, typ string, usr user.User) {
	evt := core.NewEvent(typ, usr.ID, usr.Email, usr.Role.String())
	if err := svc.Events.Publish(ctx, evt); err != nil {
		svc.Logger.Error("publishing "+typ+" event", errors.Wrap(err, "publishing event"), usr)
	}
}
