package main

import (
	"context"
)

// resetPassword sets a new password and ends the user's current session.
func (cli *commandLine) resetPassword(email, pwd string) error {
	usr, err := cli.usrSvc.ResetPassword(context.Background(), email, pwd)
	if err != nil {
		return err
	}
	cli.printf("Password updated: %s\n", usr.Email)
	return nil
}
