package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
	"github.com/schoolhub/backend/storage/database/inmem"
	"github.com/schoolhub/backend/storage/database/mongo"
	"github.com/schoolhub/backend/storage/database/sqlx"
)

// Engines
const (
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// Store is the credential store selected by database.engine.
type Store struct {
	Engine string
	Users  user.Repository
	SQL    *sqlx.DB // postgres only

	close func(context.Context) error
}

// OpenStore connects to the configured engine. The postgres engine also applies pending migrations.
func OpenStore(ctx context.Context, conf *core.Config) (*Store, error) {
	switch conf.Database.Engine {
	case EngineMongo:
		db, err := mongodb.Connect(ctx, conf)
		if err != nil {
			return nil, err
		}
		return &Store{Engine: EngineMongo, Users: mongodb.NewUserRepository(db), close: db.Close}, nil

	case EnginePostgres:
		db, err := Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Engine: EnginePostgres,
			Users:  sqlxrepos.NewUserRepository(db),
			SQL:    db,
			close:  func(context.Context) error { return db.Close() },
		}, nil

	case EngineMemory:
		return &Store{Engine: EngineMemory, Users: inmemdb.NewUserRepository(inmemdb.NewDB())}, nil

	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
