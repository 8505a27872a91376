package main

import (
	"context"
	"errors"

	"github.com/schoolhub/backend/storage/database"
)

var (
	gooseRunFunc = database.Migrate // mockable

	errMigrateUnsupported = errors.New("migrate requires the postgres database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.sqlDB == nil {
		return errMigrateUnsupported
	}
	return gooseRunFunc(context.Background(), cli.sqlDB, args[0], args[1:]...)
}
