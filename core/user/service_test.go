package user_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
	"github.com/schoolhub/backend/storage/database/inmem"
	"github.com/schoolhub/backend/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository, *testutil.EventRecorder) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	events := new(testutil.EventRecorder)
	validate, _ := testutil.NewValidator()
	svc := user.NewService(repo, testutil.Hasher, events, new(testutil.Logger), validate)
	return svc, repo, events
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, repo, events := setup(t)

	usr, err := svc.Create(ctx, user.NewUser{Name: "  Ana ", Email: " ana@x.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "Ana", usr.Name)
	assert.Equal(t, "ana@x.com", usr.Email)
	assert.Equal(t, user.DefaultRole, usr.Role)
	assert.NotEqual(t, "secret1", usr.PasswordHash)
	assert.True(t, testutil.Hasher.Verify("secret1", usr.PasswordHash))
	assert.False(t, usr.CreatedAt.IsZero())
	assert.Equal(t, []string{core.EventUserCreated}, events.Types())

	stored, err := repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.PasswordHash, stored.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "Other", Email: "ana@x.com", Password: "another1"})
		assert.Equal(t, user.ErrEmailExists, err)
		assert.Equal(t, core.KindConflict, core.KindOf(err))

		res, err := svc.Query(ctx, user.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
	})

	t.Run("explicit role", func(t *testing.T) {
		usr, err := svc.Create(ctx, user.NewUser{Name: "Tom", Email: "tom@x.com", Password: "secret1", Role: user.RoleTeacher})
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, usr.Role)
	})
}

func TestService_Create_validation(t *testing.T) {
	events := new(testutil.EventRecorder)
	validate, translator := testutil.NewValidator()
	svc := user.NewService(inmemdb.NewUserRepository(inmemdb.NewDB()), testutil.Hasher, events, new(testutil.Logger), validate)

	tests := []struct {
		name       string
		nu         user.NewUser
		wantFields map[string]string
	}{
		{
			name: "required fields",
			nu:   user.NewUser{},
			wantFields: map[string]string{
				"name":     "this field is required",
				"email":    "this field is required",
				"password": "this field is required",
			},
		},
		{
			name:       "blank name",
			nu:         user.NewUser{Name: "   ", Email: "a@x.com", Password: "secret1"},
			wantFields: map[string]string{"name": "this field is required"},
		},
		{
			name:       "invalid email",
			nu:         user.NewUser{Name: "Ana", Email: "lol", Password: "secret1"},
			wantFields: map[string]string{"email": "email must be a valid email address"},
		},
		{
			name:       "invalid role",
			nu:         user.NewUser{Name: "Ana", Email: "a@x.com", Password: "secret1", Role: "janitor"},
			wantFields: map[string]string{"role": "invalid role"},
		},
		{
			name:       "short password",
			nu:         user.NewUser{Name: "Ana", Email: "a@x.com", Password: "abc"},
			wantFields: map[string]string{"password": "password must contain at least 6 characters"},
		},
		{
			name:       "password too long",
			nu:         user.NewUser{Name: "Ana", Email: "a@x.com", Password: strings.Repeat("a", 73)},
			wantFields: map[string]string{"password": "password must not exceed 72 bytes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.nu)
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs), "got %v", err)

			got := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
	assert.Empty(t, events.Types())
}

func TestService_Create_passwordPolicy(t *testing.T) {
	ctx := context.Background()
	newSvc := func(policy user.PasswordPolicy) *user.Service {
		validate, _ := testutil.NewValidator(policy)
		repo := inmemdb.NewUserRepository(inmemdb.NewDB())
		return user.NewService(repo, testutil.Hasher, core.NewNoopPublisher(), new(testutil.Logger), validate)
	}

	tests := []struct {
		name    string
		nu      user.NewUser
		wantTag string // under the strict policy
	}{
		{
			name:    "password with whitespace",
			nu:      user.NewUser{Name: "Ana", Email: "a@x.com", Password: "my secret pass"},
			wantTag: "pwdnospace",
		},
		{
			name:    "password similar to name",
			nu:      user.NewUser{Name: "Maria Silva", Email: "maria@x.com", Password: "mariasilva"},
			wantTag: "pwdtoosim",
		},
		{
			name:    "password similar to email",
			nu:      user.NewUser{Name: "Ana", Email: "ana.maria@x.com", Password: "ana.maria@x"},
			wantTag: "pwdtoosim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := newSvc(user.PasswordPolicy{}).Create(ctx, tt.nu)
			require.NoError(t, err)
			assert.True(t, testutil.Hasher.Verify(tt.nu.Password, usr.PasswordHash))

			_, err = newSvc(user.PasswordPolicy{Strict: true}).Create(ctx, tt.nu)
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs), "got %v", err)
			require.Len(t, vErrs, 1)
			assert.Equal(t, "password", vErrs[0].Field())
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
		})
	}
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)

	now := time.Now()
	bob := testutil.CreateUser(t, repo, "Bob", "bob@x.com", "", user.RoleTeacher, now.Add(-3*time.Hour))
	ana := testutil.CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent, now.Add(-2*time.Hour))
	cid := testutil.CreateUser(t, repo, "Cid", "cid@x.com", "", user.RoleStudent, now.Add(-1*time.Hour))

	ids := func(users []user.User) []string {
		res := make([]string, 0, len(users))
		for _, u := range users {
			res = append(res, u.ID)
		}
		return res
	}

	tests := []struct {
		name      string
		filter    user.QueryFilter
		wantIDs   []string
		wantTotal int
		wantPage  int
		wantLimit int
		wantErr   error
	}{
		{name: "defaults: newest first", wantIDs: []string{cid.ID, ana.ID, bob.ID}, wantTotal: 3, wantPage: 1, wantLimit: 10},
		{
			name: "by role", filter: user.QueryFilter{Role: user.RoleStudent},
			wantIDs: []string{cid.ID, ana.ID}, wantTotal: 2, wantPage: 1, wantLimit: 10,
		},
		{
			name: "ordering by name", filter: user.QueryFilter{Orderings: []core.DBOrdering{{Field: "name", Ascending: true}}},
			wantIDs: []string{ana.ID, bob.ID, cid.ID}, wantTotal: 3, wantPage: 1, wantLimit: 10,
		},
		{
			name: "paginated", filter: user.QueryFilter{Page: core.Page{Number: 2, Size: 2}},
			wantIDs: []string{bob.ID}, wantTotal: 3, wantPage: 2, wantLimit: 2,
		},
		{
			name: "page out of range", filter: user.QueryFilter{Page: core.Page{Number: 5, Size: 2}},
			wantIDs: []string{}, wantTotal: 3, wantPage: 5, wantLimit: 2,
		},
		{name: "invalid role", filter: user.QueryFilter{Role: "janitor"}, wantErr: core.NewBadRequestError("invalid role")},
		{
			name: "invalid ordering", filter: user.QueryFilter{Orderings: []core.DBOrdering{{Field: "passwordHash"}}},
			wantErr: core.NewBadRequestError("invalid ordering field: passwordHash"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Query(ctx, tt.filter)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(res.Users))
			assert.Equal(t, tt.wantTotal, res.Total)
			assert.Equal(t, tt.wantPage, res.Page)
			assert.Equal(t, tt.wantLimit, res.Limit)
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)

	ana := testutil.CreateUser(t, repo, "Ana", "ana@x.com", "secret1", user.RoleStudent)
	testutil.CreateUser(t, repo, "Bob", "bob@x.com", "secret1", user.RoleStudent)
	require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, "somehash"))

	strPtr := func(s string) *string { return &s }
	rolePtr := func(r user.Role) *user.Role { return &r }

	t.Run("not found", func(t *testing.T) {
		_, err := svc.Update(ctx, "unknown", user.UpdateUser{Name: strPtr("X")})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("email taken", func(t *testing.T) {
		_, err := svc.Update(ctx, ana.ID, user.UpdateUser{Email: strPtr("bob@x.com")})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("name and role", func(t *testing.T) {
		usr, err := svc.Update(ctx, ana.ID, user.UpdateUser{Name: strPtr(" Ana Maria "), Role: rolePtr(user.RoleTeacher)})
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria", usr.Name)
		assert.Equal(t, user.RoleTeacher, usr.Role)
		assert.Equal(t, "ana@x.com", usr.Email)

		stored, err := repo.GetUserByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "somehash", stored.RefreshTokenHash, "session kept")
	})

	t.Run("password change revokes session", func(t *testing.T) {
		usr, err := svc.Update(ctx, ana.ID, user.UpdateUser{Password: strPtr("n3wpass")})
		require.NoError(t, err)
		assert.True(t, testutil.Hasher.Verify("n3wpass", usr.PasswordHash))

		stored, err := repo.GetUserByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.RefreshTokenHash)
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	testutil.CreateUser(t, repo, "Ana", "ana@x.com", "secret1", user.RoleStudent)

	_, err := svc.ResetPassword(ctx, "nobody@x.com", "whatever1")
	assert.Equal(t, user.ErrNotFound, err)

	usr, err := svc.ResetPassword(ctx, " ana@x.com", "brandnew1")
	require.NoError(t, err)
	assert.True(t, testutil.Hasher.Verify("brandnew1", usr.PasswordHash))
	assert.False(t, testutil.Hasher.Verify("secret1", usr.PasswordHash))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, repo, events := setup(t)
	ana := testutil.CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)

	require.NoError(t, svc.Delete(ctx, ana.ID))
	assert.Equal(t, []string{core.EventUserDeleted}, events.Types())

	_, err := svc.GetByID(ctx, ana.ID)
	assert.Equal(t, user.ErrNotFound, err)
	assert.Equal(t, user.ErrNotFound, svc.Delete(ctx, ana.ID))
}

func TestService_publishFailureIsLogged(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	events := &testutil.EventRecorder{Err: errors.New("broker down")}
	logger := new(testutil.Logger)
	validate, _ := testutil.NewValidator()
	svc := user.NewService(repo, testutil.Hasher, events, logger, validate)

	_, err := svc.Register(context.Background(), user.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"publishing user.registered event"}, logger.Messages)
}
