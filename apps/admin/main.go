package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
	logsvc "github.com/schoolhub/backend/services/logger"
	"github.com/schoolhub/backend/storage/database"
)

func main() {
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		stdLogger.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(stdLogger, conf)

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	store, err := database.OpenStore(ctx, conf)
	cancel()
	if err != nil {
		logger.Fatal("setting up database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, user.PasswordPolicy{Strict: conf.Auth.StrictPasswords})

	// start CLI
	cli := commandLine{
		usrSvc: user.NewService(store.Users, user.NewBcryptHasher(conf.Auth.BcryptCost), core.NewNoopPublisher(), logger, validate),
		sqlDB:  store.SQL,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	if cerr := store.Close(context.Background()); cerr != nil {
		logger.Error("closing database", cerr)
	}
	if err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
