package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

// TestUserRepository checks the behaviour every credential store must have.
// newRepo must return an empty repository.
func TestUserRepository(t *testing.T, newRepo func(t *testing.T) user.Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "secret1", user.RoleStudent)
		assert.NotEmpty(t, ana.ID)

		got, err := repo.GetUserByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, ana.Email, got.Email)
		assert.Equal(t, ana.PasswordHash, got.PasswordHash)
		assert.Equal(t, user.RoleStudent, got.Role)
		assert.Empty(t, got.RefreshTokenHash)

		got, err = repo.GetUserByEmail(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.Equal(t, ana.ID, got.ID)

		_, err = repo.GetUserByEmail(ctx, "ANA@x.com")
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUserByID(ctx, "000000000000000000000000")
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUserByID(ctx, "not-an-id")
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("unique email", func(t *testing.T) {
		repo := newRepo(t)
		CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)
		_, err := repo.CreateUser(ctx, user.User{Name: "Ana 2", Email: "ana@x.com", Role: user.RoleStudent})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("query", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now()
		bob := CreateUser(t, repo, "Bob", "bob@x.com", "", user.RoleTeacher, now.Add(-3*time.Hour))
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent, now.Add(-2*time.Hour))
		cid := CreateUser(t, repo, "Cid", "cid@x.com", "", user.RoleStudent, now.Add(-1*time.Hour))

		ids := func(users []user.User) []string {
			res := make([]string, 0, len(users))
			for _, u := range users {
				res = append(res, u.ID)
			}
			return res
		}

		users, total, err := repo.QueryUsers(ctx, user.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{cid.ID, ana.ID, bob.ID}, ids(users))

		users, total, err = repo.QueryUsers(ctx, user.QueryFilter{Role: user.RoleStudent})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []string{cid.ID, ana.ID}, ids(users))

		users, total, err = repo.QueryUsers(ctx, user.QueryFilter{
			Orderings: []core.DBOrdering{{Field: "name", Ascending: true}},
			Page:      core.Page{Number: 1, Size: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{ana.ID, bob.ID}, ids(users))

		users, _, err = repo.QueryUsers(ctx, user.QueryFilter{
			Orderings: []core.DBOrdering{{Field: "role", Ascending: false}, {Field: "email", Ascending: true}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{bob.ID, ana.ID, cid.ID}, ids(users))
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)
		CreateUser(t, repo, "Bob", "bob@x.com", "", user.RoleStudent)
		require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, "h1"))

		ana.Name = "Ana Maria"
		ana.Role = user.RoleTeacher
		ana.PasswordHash = "newhash"
		ana.RefreshTokenHash = "ignored"
		updated, err := repo.UpdateUser(ctx, ana)
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria", updated.Name)
		assert.Equal(t, user.RoleTeacher, updated.Role)
		assert.Equal(t, "newhash", updated.PasswordHash)
		assert.Equal(t, "h1", updated.RefreshTokenHash, "refresh hash is not written by UpdateUser")

		ana.Email = "bob@x.com"
		_, err = repo.UpdateUser(ctx, ana)
		assert.Equal(t, user.ErrEmailExists, err)

		_, err = repo.UpdateUser(ctx, user.User{ID: "000000000000000000000000", Email: "z@x.com"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)
		require.NoError(t, repo.DeleteUser(ctx, ana.ID))
		assert.Equal(t, user.ErrNotFound, repo.DeleteUser(ctx, ana.ID))
		_, err := repo.GetUserByID(ctx, ana.ID)
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("refresh token hash", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)
		hashOf := func() string {
			usr, err := repo.GetUserByID(ctx, ana.ID)
			require.NoError(t, err)
			return usr.RefreshTokenHash
		}

		assert.Equal(t, user.ErrRefreshTokenMismatch, repo.SwapRefreshTokenHash(ctx, ana.ID, "", "h1"))

		require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, "h1"))
		assert.Equal(t, "h1", hashOf())

		assert.Equal(t, user.ErrRefreshTokenMismatch, repo.SwapRefreshTokenHash(ctx, ana.ID, "h0", "h2"))
		assert.Equal(t, "h1", hashOf())

		require.NoError(t, repo.SwapRefreshTokenHash(ctx, ana.ID, "h1", "h2"))
		assert.Equal(t, "h2", hashOf())

		require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, ""))
		assert.Empty(t, hashOf())
		require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, ""))

		assert.Equal(t, user.ErrNotFound, repo.SetRefreshTokenHash(ctx, "000000000000000000000000", "h"))
		assert.Equal(t, user.ErrNotFound, repo.SwapRefreshTokenHash(ctx, "000000000000000000000000", "h", "h2"))
	})

	t.Run("concurrent swap", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@x.com", "", user.RoleStudent)
		require.NoError(t, repo.SetRefreshTokenHash(ctx, ana.ID, "h0"))

		const n = 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := repo.SwapRefreshTokenHash(ctx, ana.ID, "h0", "new"); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newRepo(t).Ping(ctx))
	})
}
