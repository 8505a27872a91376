package main

import (
	"context"

	"github.com/schoolhub/backend/core/user"
)

// addUser creates a user.User with the given role.
func (cli *commandLine) addUser(name, email, pwd string, role user.Role) error {
	usr, err := cli.usrSvc.Create(context.Background(), user.NewUser{
		Name:     name,
		Email:    email,
		Password: pwd,
		Role:     role,
	})
	if err != nil {
		return err
	}
	cli.printf("User created: %s (%s, id %s)\n", usr.Email, usr.Role, usr.ID)
	return nil
}
