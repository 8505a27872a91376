package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
	"github.com/schoolhub/backend/storage/database/inmem"
	"github.com/schoolhub/backend/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	usrRepo = inmemdb.NewUserRepository(inmemdb.NewDB())
	validate, _ := testutil.NewValidator()
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		usrSvc: user.NewService(usrRepo, testutil.Hasher, core.NewNoopPublisher(), new(testutil.Logger), validate),
		out:    out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if pwd, ok := tt.extra.(string); ok {
				return []byte(pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no sql database", args: []string{"migrate", "up"}, wantErr: errMigrateUnsupported},
	}
	runCLITests(t, cli, tests, nil)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	cli.sqlDB = sqlx.NewDb(db, "postgres")

	var ran []string
	gooseRunFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests = []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "courses", "sql"}},
	}
	runCLITests(t, cli, tests, nil)
	assert.Equal(t, []string{"up", "up-to", "down", "down-to", "status", "create"}, ran)
}

func Test_commandLine_seed(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)

	require.NoError(t, cli.run([]string{"admin", "seed"}))
	for _, nu := range seedUsers {
		usr, err := usrRepo.GetUserByEmail(ctx, nu.Email)
		require.NoError(t, err, nu.Email)
		assert.Equal(t, nu.Role, usr.Role)
		assert.True(t, testutil.Hasher.Verify(nu.Password, usr.PasswordHash))
	}

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seed"}))
	assert.Contains(t, out.String(), "User already exists: admin@school.com")

	require.NoError(t, cli.run([]string{"admin", "seed", "-drop"}))
	_, total, err := usrRepo.QueryUsers(ctx, user.QueryFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no name", args: []string{"adduser", "-email", "ana@x.com"}, extra: "secret1", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "ana@x.com", "-name", "Ana"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-username", "ana"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-email", "ana@x.com", "-name", "Ana", "-role", "teacher"}, extra: "secret1"},
		{name: "duplicate", args: []string{"adduser", "-email", "ana@x.com", "-name", "Ana"}, extra: "secret1", wantErr: user.ErrEmailExists},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		usr, err := usrRepo.GetUserByEmail(context.Background(), "ana@x.com")
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, usr.Role)
		assert.True(t, testutil.Hasher.Verify("secret1", usr.PasswordHash))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	ctx := context.Background()
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.cd", "secret1", user.RoleStudent)
	require.NoError(t, usrRepo.SetRefreshTokenHash(ctx, usr.ID, "h1"))

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: "n3wsecret", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: "n3wsecret"},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := usrRepo.GetUserByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.True(t, testutil.Hasher.Verify("n3wsecret", refreshed.PasswordHash))
		assert.Empty(t, refreshed.RefreshTokenHash)
	})
}
