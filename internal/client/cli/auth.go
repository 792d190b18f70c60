package cli

import (
	"context"
	"errors"
	"os"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
)

// getSimpleText, getPassword and getMultiline are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

func (a *App) readPassword() (string, error) {
	pw, err := getPassword(os.Stdout)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// Register prompts for email, name and password and creates an account. The
// new session is signed in right away.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	first, err := getSimpleText(a.reader, "First name", os.Stdout)
	if err != nil {
		return err
	}
	last, err := getSimpleText(a.reader, "Last name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}

	s, err := a.session.SignUp(ctx, email, password, models.Profile{FirstName: first, LastName: last})
	if err != nil {
		return err
	}

	printlnFn("Welcome,", s.User.FullName())
	return nil
}

// Login needs the server. A session restored from disk keeps the user
// logged in offline, so there is no offline login path.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}

	s, err := a.session.SignIn(ctx, email, password)
	if err != nil {
		if common.IsRetryable(err) {
			printlnFn("Server unavailable, try again when online")
		}
		return err
	}

	printlnFn("Logged in as", s.User.Email)
	return nil
}

// Logout ends the session locally even when the server cannot be told.
// Queued changes stay and are sent after the next login.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}

func (a *App) ChangePassword(ctx context.Context) error {
	printlnFn("Current password")
	oldPassword, err := a.readPassword()
	if err != nil {
		return err
	}
	printlnFn("New password")
	newPassword, err := a.readPassword()
	if err != nil {
		return err
	}
	if newPassword == oldPassword {
		return errors.New("new password must differ from the current one")
	}

	if err := a.session.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	printlnFn("Password changed")
	return nil
}
