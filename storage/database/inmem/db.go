// Package inmemdb is an in-memory credential store used by tests and the `memory` engine.
package inmemdb

import (
	"context"
	"sync"

	"github.com/schoolhub/backend/core/user"
)

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

// DB holds the in-memory tables.
type DB struct {
	user *userTable
}

func NewDB() *DB {
	return &DB{user: &userTable{table: make(map[string]*user.User)}}
}

func (db *DB) Ping(context.Context) error { return nil }

// Reset drops all records.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	defer db.user.mutex.Unlock()
	db.user.table = make(map[string]*user.User)
}
