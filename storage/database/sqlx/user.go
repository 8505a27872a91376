// Package sqlxrepos is the PostgreSQL credential store built on sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/backend/core/user"
)

const (
	uniqueViolation = "23505"

	userColumns = "id, name, email, role, password_hash, refresh_token_hash, created_at, updated_at"
)

// orderColumns maps public field names to columns.
var orderColumns = map[string]string{
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

type userRow struct {
	ID               string      `db:"id"`
	Name             string      `db:"name"`
	Email            string      `db:"email"`
	Role             string      `db:"role"`
	PasswordHash     string      `db:"password_hash"`
	RefreshTokenHash null.String `db:"refresh_token_hash"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Role:             user.Role(r.Role),
		PasswordHash:     r.PasswordHash,
		RefreshTokenHash: r.RefreshTokenHash.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo *userRepository) getOne(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	q := "SELECT " + userColumns + " FROM users WHERE " + where
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	q := `INSERT INTO users (id, name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, q, usr.ID, usr.Name, usr.Email, usr.Role.String(), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	// postgres stores microseconds
	usr.CreatedAt = usr.CreatedAt.Truncate(time.Microsecond)
	usr.UpdatedAt = usr.UpdatedAt.Truncate(time.Microsecond)
	usr.RefreshTokenHash = ""
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getOne(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, "email = $1", email)
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, int, error) {
	var (
		where string
		args  []interface{}
	)
	if filter.Role != "" {
		where = " WHERE role = $1"
		args = append(args, filter.Role.String())
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	orderBy := make([]string, 0, len(filter.Orderings)+1)
	for _, ord := range filter.Orderings {
		if col, ok := orderColumns[ord.Field]; ok {
			ord.Field = col
			orderBy = append(orderBy, ord.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "created_at DESC")
	}
	orderBy = append(orderBy, "id ASC")

	page := filter.Page.Normalize()
	q := fmt.Sprintf(
		"SELECT %s FROM users%s ORDER BY %s LIMIT %d OFFSET %d",
		userColumns, where, strings.Join(orderBy, ", "), page.Size, page.Offset(),
	)
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, total, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	q := `UPDATE users SET name = $1, email = $2, role = $3, password_hash = $4, updated_at = $5
		WHERE id = $6 RETURNING ` + userColumns
	var row userRow
	err := repo.db.GetContext(ctx, &row, q, usr.Name, usr.Email, usr.Role.String(), usr.PasswordHash, usr.UpdatedAt, usr.ID)
	switch {
	case err == nil:
		return row.toUser(), nil
	case errors.Is(err, sql.ErrNoRows):
		return user.User{}, user.ErrNotFound
	case isUniqueViolation(err):
		return user.User{}, user.ErrEmailExists
	default:
		return user.User{}, errors.Wrap(err, "updating user")
	}
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return notFoundIfNoRows(res)
}

func (repo *userRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	res, err := repo.db.ExecContext(
		ctx, "UPDATE users SET refresh_token_hash = $1 WHERE id = $2",
		null.NewString(hash, hash != ""), id,
	)
	if err != nil {
		return errors.Wrap(err, "setting refresh token hash")
	}
	return notFoundIfNoRows(res)
}

func (repo *userRepository) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	if oldHash == "" {
		return user.ErrRefreshTokenMismatch
	}
	res, err := repo.db.ExecContext(
		ctx, "UPDATE users SET refresh_token_hash = $1 WHERE id = $2 AND refresh_token_hash = $3",
		newHash, id, oldHash,
	)
	if err != nil {
		return errors.Wrap(err, "swapping refresh token hash")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "swapping refresh token hash")
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", id); err != nil {
		return errors.Wrap(err, "checking user")
	}
	if !exists {
		return user.ErrNotFound
	}
	return user.ErrRefreshTokenMismatch
}

func (repo *userRepository) Ping(ctx context.Context) error {
	return repo.db.PingContext(ctx)
}

func notFoundIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
