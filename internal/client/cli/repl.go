package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const help = `Commands:
  signup        create an account with email and password
  signin        sign in with email and password
  google-signin sign in with a Google ID token
  google-signup create an account from a Google ID token
  forgot        send a password reset email
  whoami        show the current profile
  signout       sign out
  exit | quit   leave`

// Run reads commands until exit or end of input.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, help)
	for {
		line, err := prompt(a.in, a.out, "["+a.status()+"]")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		cmd := strings.ToLower(strings.TrimSpace(line))
		switch cmd {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(a.out, help)
		case "signup":
			err = a.SignUp(ctx)
		case "signin":
			err = a.SignIn(ctx)
		case "google-signin":
			err = a.Google(ctx, "signIn")
		case "google-signup":
			err = a.Google(ctx, "signUp")
		case "forgot":
			err = a.ForgotPassword(ctx)
		case "whoami":
			a.Whoami()
		case "signout":
			err = a.SignOut(ctx)
		default:
			fmt.Fprintf(a.out, "unknown command %q; type help\n", cmd)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintln(a.out, "error:", err)
		}
	}
}
