package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

var errInsecureSecretKey = errors.New("auth.secretKey must be set outside debug mode")

type (
	ServerConfig struct {
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		DisableRequestLogs bool
	}

	DatabaseConfig struct {
		Engine  string // mongo | postgres | memory
		URL     string
		Name    string
		Timeout time.Duration
	}

	AuthConfig struct {
		SecretKey          string
		Issuer             string
		AccessTokenTTL     time.Duration
		RefreshTokenTTL    time.Duration
		BcryptCost         int
		MaxLoginAttempts   int // 0 disables login throttling
		LoginAttemptWindow time.Duration
		StrictPasswords    bool // reject whitespace and name/email lookalikes
	}

	Config struct {
		Env          string // DEV (default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		RollbarToken string
		RedisURL     string
		NatsURL      string

		Server   ServerConfig
		Database DatabaseConfig
		Auth     AuthConfig
	}
)

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "SchoolHub")
	v.SetDefault("build", "develop")
	v.SetDefault("rollbar.token", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("nats.url", "")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableRequestLogs", false)

	v.SetDefault("database.engine", "mongo")
	v.SetDefault("database.url", "mongodb://localhost:27017")
	v.SetDefault("database.name", "schoolhub")
	v.SetDefault("database.timeout", 10*time.Second)

	v.SetDefault("auth.secretKey", defaultSecretKey)
	v.SetDefault("auth.issuer", "schoolhub")
	v.SetDefault("auth.accessTokenTTL", time.Hour)
	v.SetDefault("auth.refreshTokenTTL", 7*24*time.Hour)
	v.SetDefault("auth.bcryptCost", 10)
	v.SetDefault("auth.maxLoginAttempts", 0)
	v.SetDefault("auth.loginAttemptWindow", 15*time.Minute)
	v.SetDefault("auth.strictPasswords", false)
}

// NewConfig loads the application configuration from defaults, the optional
// `config/.env.<env>` file and the environment (APP_ prefixed, e.g. APP_AUTH_SECRETKEY).
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}

	v := viper.New()
	setDefaults(v)
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return configFromViper(env, v)
}

func configFromViper(env string, v *viper.Viper) (*Config, error) {
	conf := &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbar.token"),
		RedisURL:     v.GetString("redis.url"),
		NatsURL:      v.GetString("nats.url"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			DisableRequestLogs: v.GetBool("server.disableRequestLogs"),
		},
		Database: DatabaseConfig{
			Engine:  strings.ToLower(v.GetString("database.engine")),
			URL:     v.GetString("database.url"),
			Name:    v.GetString("database.name"),
			Timeout: v.GetDuration("database.timeout"),
		},
		Auth: AuthConfig{
			SecretKey:          v.GetString("auth.secretKey"),
			Issuer:             v.GetString("auth.issuer"),
			AccessTokenTTL:     v.GetDuration("auth.accessTokenTTL"),
			RefreshTokenTTL:    v.GetDuration("auth.refreshTokenTTL"),
			BcryptCost:         v.GetInt("auth.bcryptCost"),
			MaxLoginAttempts:   v.GetInt("auth.maxLoginAttempts"),
			LoginAttemptWindow: v.GetDuration("auth.loginAttemptWindow"),
			StrictPasswords:    v.GetBool("auth.strictPasswords"),
		},
	}

	if !conf.Debug && (conf.Auth.SecretKey == "" || conf.Auth.SecretKey == defaultSecretKey) {
		return nil, errInsecureSecretKey
	}
	return conf, nil
}

// NewTestConfig returns a Config suitable for tests: in-memory store, cheap hashing.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("database.engine", "memory")
	v.Set("auth.secretKey", "test-secret")
	v.Set("auth.bcryptCost", 4)
	conf, _ := configFromViper("TEST", v)
	return conf
}
