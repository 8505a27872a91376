package dig_container

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/schoolhub/backend/apps/api/echo"
	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/auth"
	"github.com/schoolhub/backend/core/user"
	eventsvc "github.com/schoolhub/backend/services/events"
	logsvc "github.com/schoolhub/backend/services/logger"
	"github.com/schoolhub/backend/services/throttle"
	"github.com/schoolhub/backend/storage/database"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type authParams struct {
	dig.In
	Users    *user.Service
	Repo     user.Repository
	Hasher   user.PasswordHasher
	Tokens   *auth.TokenIssuer
	Throttle auth.LoginThrottle `optional:"true"`
	Events   core.EventPublisher
	Logger   core.Logger
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) (*database.Store, user.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	defer cancel()

	store, err := database.OpenStore(ctx, conf)
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", errors.Wrap(err, "setting up database"))
		return nil, nil
	}
	return store, store.Users
}

func newValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, user.PasswordPolicy{Strict: conf.Auth.StrictPasswords})
	return validate, translator
}

func newHasher(conf *core.Config) user.PasswordHasher {
	return user.NewBcryptHasher(conf.Auth.BcryptCost)
}

func newTokenIssuer(conf *core.Config) *auth.TokenIssuer {
	return auth.NewTokenIssuer(conf.Auth)
}

func newEvents(conf *core.Config, logger core.Logger) (core.EventPublisher, error) {
	return eventsvc.New(conf, logger)
}

func newThrottle(conf *core.Config) (auth.LoginThrottle, error) {
	return throttle.New(conf)
}

func newAuthService(p authParams) *auth.Service {
	return auth.NewService(auth.Deps{
		Users:    p.Users,
		Repo:     p.Repo,
		Hasher:   p.Hasher,
		Tokens:   p.Tokens,
		Throttle: p.Throttle,
		Events:   p.Events,
		Logger:   p.Logger,
	})
}

func newMetrics(conf *core.Config) *echoapi.Metrics {
	return echoapi.NewMetrics(core.CleanString(conf.AppName, true /* lower */))
}

func newServer(
	conf *core.Config,
	authSvc *auth.Service,
	users *user.Service,
	tokens *auth.TokenIssuer,
	logger core.Logger,
	translator ut.Translator,
	metrics *echoapi.Metrics,
) *echoapi.Server {
	return echoapi.NewServerFromConfig(conf, &echoapi.Deps{
		Auth:       authSvc,
		Users:      users,
		Tokens:     tokens,
		Logger:     logger,
		Translator: translator,
		Metrics:    metrics,
		DBEngine:   conf.Database.Engine,
	})
}

// New returns a new dependency injection dig.Container.
// newConfig defaults to core.NewConfig.
func New(newConfig ...func() (*core.Config, error)) *dig.Container {
	c := dig.New()

	if len(newConfig) > 0 {
		must(c.Provide(newConfig[0]))
	} else {
		must(c.Provide(core.NewConfig))
	}
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newValidator))
	must(c.Provide(newHasher))
	must(c.Provide(newTokenIssuer))
	must(c.Provide(newEvents))
	must(c.Provide(newThrottle))
	must(c.Provide(user.NewService))
	must(c.Provide(newAuthService))
	must(c.Provide(newMetrics))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
