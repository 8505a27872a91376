package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core/user"
)

var seedUsers = []user.NewUser{
	{Name: "Admin User", Email: "admin@school.com", Password: "admin123", Role: user.RoleAdmin},
	{Name: "Teacher User", Email: "teacher@school.com", Password: "teacher123", Role: user.RoleTeacher},
	{Name: "Student User", Email: "student@school.com", Password: "student123", Role: user.RoleStudent},
}

// seed creates the default accounts, skipping those that already exist.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	for _, nu := range seedUsers {
		_, err := cli.usrSvc.GetByEmail(ctx, nu.Email)
		switch errors.Cause(err) {
		case nil:
			cli.printf("User already exists: %s\n", nu.Email)
			continue
		case user.ErrNotFound:
		default:
			return err
		}

		if _, err := cli.usrSvc.Create(ctx, nu); err != nil {
			return errors.Wrapf(err, "creating %s", nu.Email)
		}
		cli.printf("User created: %s\n", nu.Email)
	}
	return nil
}

// dropSeed removes the default accounts.
func (cli *commandLine) dropSeed() error {
	ctx := context.Background()
	for _, nu := range seedUsers {
		usr, err := cli.usrSvc.GetByEmail(ctx, nu.Email)
		if errors.Cause(err) == user.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := cli.usrSvc.Delete(ctx, usr.ID); err != nil {
			return errors.Wrapf(err, "deleting %s", nu.Email)
		}
		cli.printf("User removed: %s\n", nu.Email)
	}
	return nil
}
