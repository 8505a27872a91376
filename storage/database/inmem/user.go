package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

var defaultOrdering = []core.DBOrdering{{Field: "createdAt", Ascending: false}}

type userRepository struct {
	db   *DB
	data *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db, data: db.user}
}

func (repo *userRepository) emailTaken(email, exclID string) bool {
	for id, usr := range repo.data.table {
		if usr.Email == email && id != exclID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.data.mutex.Lock()
	defer repo.data.mutex.Unlock()

	if repo.emailTaken(usr.Email, "") {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = uuid.NewString()
	repo.data.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.data.mutex.RLock()
	defer repo.data.mutex.RUnlock()

	if usr, ok := repo.data.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.data.mutex.RLock()
	defer repo.data.mutex.RUnlock()

	for _, usr := range repo.data.table {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, int, error) {
	repo.data.mutex.RLock()
	users := make([]user.User, 0, len(repo.data.table))
	for _, usr := range repo.data.table {
		if filter.Role == "" || usr.Role == filter.Role {
			users = append(users, *usr)
		}
	}
	repo.data.mutex.RUnlock()

	orderings := filter.Orderings
	if len(orderings) == 0 {
		orderings = defaultOrdering
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareField(users[i], users[j], ord.Field); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return users[i].ID < users[j].ID
	})

	total := len(users)
	page := filter.Page.Normalize()
	start := page.Offset()
	if start >= total {
		return []user.User{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return users[start:end], total, nil
}

func compareField(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role.String(), b.Role.String())
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.data.mutex.Lock()
	defer repo.data.mutex.Unlock()

	orig, ok := repo.data.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.emailTaken(usr.Email, usr.ID) {
		return user.User{}, user.ErrEmailExists
	}
	orig.Name = usr.Name
	orig.Email = usr.Email
	orig.Role = usr.Role
	orig.PasswordHash = usr.PasswordHash
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.data.mutex.Lock()
	defer repo.data.mutex.Unlock()

	if _, ok := repo.data.table[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.data.table, id)
	return nil
}

func (repo *userRepository) SetRefreshTokenHash(_ context.Context, id, hash string) error {
	repo.data.mutex.Lock()
	defer repo.data.mutex.Unlock()

	usr, ok := repo.data.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.RefreshTokenHash = hash
	return nil
}

func (repo *userRepository) SwapRefreshTokenHash(_ context.Context, id, oldHash, newHash string) error {
	repo.data.mutex.Lock()
	defer repo.data.mutex.Unlock()

	usr, ok := repo.data.table[id]
	if !ok {
		return user.ErrNotFound
	}
	if usr.RefreshTokenHash == "" || usr.RefreshTokenHash != oldHash {
		return user.ErrRefreshTokenMismatch
	}
	usr.RefreshTokenHash = newHash
	return nil
}

func (repo *userRepository) Ping(ctx context.Context) error {
	return repo.db.Ping(ctx)
}
