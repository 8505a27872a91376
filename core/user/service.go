package user

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user not found")
	ErrEmailExists          = core.NewConflictError("Email already registered")
	ErrRefreshTokenMismatch = errors.New("stored refresh token hash does not match")
	errInvalidRole          = core.NewBadRequestError("invalid role")
)

// NowFunc returns the current UTC time. Tests may override it.
var NowFunc = func() time.Time { return time.Now().UTC() }

type (
	// Repository is the credential store.
	// Lookups of missing records return ErrNotFound; a duplicate email returns ErrEmailExists.
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers returns the requested page and the total number of users matching the filter.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, int, error)
		// UpdateUser persists Name, Email, Role, PasswordHash and UpdatedAt.
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUser(ctx context.Context, id string) error
		// SetRefreshTokenHash overwrites the stored refresh token hash; an empty hash clears it.
		SetRefreshTokenHash(ctx context.Context, id, hash string) error
		// SwapRefreshTokenHash replaces the stored hash only if it still equals oldHash,
		// returning ErrRefreshTokenMismatch otherwise.
		SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) error
		Ping(ctx context.Context) error
	}

	Service struct {
		repo     Repository
		hasher   PasswordHasher
		events   core.EventPublisher
		logger   core.Logger
		validate *validator.Validate
	}
)

func NewService(
	repo Repository,
	hasher PasswordHasher,
	events core.EventPublisher,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		events:   events,
		logger:   logger,
		validate: validate,
	}
}

// Create validates and stores a new user created by an administrator.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	svc.publish(ctx, core.EventUserCreated, usr)
	return usr, nil
}

// Register validates and stores a self-registered user.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	svc.publish(ctx, core.EventUserRegistered, usr)
	return usr, nil
}

func (svc *Service) create(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	if err := svc.checkEmailAvailable(ctx, nu.Email); err != nil {
		return User{}, err
	}

	role := nu.Role
	if role == "" {
		role = DefaultRole
	}
	hash, err := svc.hasher.Hash(nu.Password)
	if err != nil {
		return User{}, err
	}

	now := NowFunc()
	usr, err := svc.repo.CreateUser(ctx, User{
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, ErrEmailExists
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// checkEmailAvailable runs before hashing so duplicates fail fast. The store's
// unique constraint still guards concurrent registrations.
func (svc *Service) checkEmailAvailable(ctx context.Context, email string) error {
	_, err := svc.repo.GetUserByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		return ErrEmailExists
	case ErrNotFound:
		return nil
	default:
		return errors.Wrap(err, "finding user by email")
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) (QueryResult, error) {
	if filter.Role != "" && !filter.Role.IsValid() {
		return QueryResult{}, errInvalidRole
	}
	for _, ord := range filter.Orderings {
		if !isOrderable(ord.Field) {
			return QueryResult{}, core.NewBadRequestError("invalid ordering field: " + ord.Field)
		}
	}
	filter.Page = filter.Page.Normalize()
	if filter.Page.Number > math.MaxInt/filter.Page.Size {
		return QueryResult{}, core.NewBadRequestError(fmt.Sprintf("invalid page: %d", filter.Page.Number))
	}

	users, total, err := svc.repo.QueryUsers(ctx, filter)
	if err != nil {
		return QueryResult{}, errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []User{}
	}
	return QueryResult{Users: users, Total: total, Page: filter.Page.Number, Limit: filter.Page.Size}, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email))
}

// Update applies the non-nil fields of uu. A password change also revokes the refresh session.
func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	if err := uu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.Email != nil && *uu.Email != usr.Email {
		if err := svc.checkEmailAvailable(ctx, *uu.Email); err != nil {
			return User{}, err
		}
		usr.Email = *uu.Email
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.Password != nil {
		if usr.PasswordHash, err = svc.hasher.Hash(*uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = NowFunc()

	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		if c := errors.Cause(err); c == ErrEmailExists || c == ErrNotFound {
			return User{}, c
		}
		return User{}, errors.Wrap(err, "updating user")
	}

	if uu.Password != nil {
		if err := svc.repo.SetRefreshTokenHash(ctx, id, ""); err != nil {
			return User{}, errors.Wrap(err, "revoking refresh token")
		}
		usr.RefreshTokenHash = ""
	}
	return usr, nil
}

// ResetPassword sets a new password for the user with the given email.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	return svc.Update(ctx, usr.ID, UpdateUser{Password: &pwd})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteUser(ctx, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "deleting user")
	}
	svc.publish(ctx, core.EventUserDeleted, usr)
	return nil
}

// Ping checks the credential store.
func (svc *Service) Ping(ctx context.Context) error {
	return svc.repo.Ping(ctx)
}

func (svc *Service) publish(ctx context.Context, typ string, usr User) {
	evt := core.NewEvent(typ, usr.ID, usr.Email, usr.Role.String())
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error("publishing "+typ+" event", errors.Wrap(err, "publishing event"), usr)
	}
}

func isOrderable(field string) bool {
	for _, f := range OrderableFields {
		if f == field {
			return true
		}
	}
	return false
}
