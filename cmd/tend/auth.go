package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/config"
	"github.com/tendlist/tend/internal/remote"
	"github.com/tendlist/tend/internal/snapshot"
	"github.com/tendlist/tend/internal/ui"
)

var (
	loginEmail  string
	signupEmail string
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Sign in to your account",
	Long: `Sign in with email and password.

The resulting session is stored locally and refreshed automatically;
you stay signed in until you run "tend logout".

Example usage:
  tend login
  tend login --email you@example.com
  printf 'you@example.com\nhunter22\n' | tend login`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(false)
		if err != nil {
			fatal("%v", err)
		}

		email, password := loginEmail, ""
		if err := ui.Credentials(&email, &password, false); err != nil {
			fatal("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		sess, err := a.session.SignIn(ctx, email, password)
		if err != nil {
			var remoteErr *remote.Error
			if errors.As(err, &remoteErr) && remoteErr.Status == 400 {
				fatal("sign in failed: check your email and password")
			}
			fatal("sign in failed: %v", err)
		}
		fmt.Printf("Signed in as %s\n", sess.Email)
	},
}

var signupCmd = &cobra.Command{
	Use:     "signup",
	GroupID: "auth",
	Short:   "Create a new account",
	Long: `Create an account with email and password.

Depending on the service's settings you are either signed in
immediately or asked to confirm your email address first.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(false)
		if err != nil {
			fatal("%v", err)
		}

		email, password := signupEmail, ""
		if err := ui.Credentials(&email, &password, true); err != nil {
			fatal("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		sess, err := a.session.SignUp(ctx, email, password)
		if err != nil {
			fatal("sign up failed: %v", err)
		}
		if sess == nil {
			fmt.Printf("Account created. Check %s for a confirmation link, then run: tend login\n", email)
			return
		}
		fmt.Printf("Signed in as %s\n", sess.Email)
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "Sign out and forget the local session",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(false)
		if err != nil {
			fatal("%v", err)
		}
		if a.session.Current() == nil {
			fmt.Println("Not signed in")
			return
		}
		userID := a.session.UserID()

		ctx, cancel := commandContext()
		defer cancel()

		if err := a.session.SignOut(ctx); err != nil {
			fatal("sign out failed: %v", err)
		}
		clearSnapshot(ctx, userID)
		fmt.Println("Signed out")
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Show the signed-in account",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(false)
		if err != nil {
			fatal("%v", err)
		}
		sess := a.session.Current()
		if sess == nil {
			fmt.Println("Not signed in")
			os.Exit(1)
		}
		fmt.Printf("%s (%s)\n", sess.Email, sess.UserID)
	},
}

// clearSnapshot drops the signed-out user's warm-start data. Best
// effort; the session itself is already gone.
func clearSnapshot(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	path, err := config.SnapshotPath()
	if err != nil {
		return
	}
	store, err := snapshot.Open(path)
	if err != nil {
		return
	}
	defer store.Close()
	if err := store.Clear(ctx, userID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to clear local snapshot: %v\n", err)
	}
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address (prompted if omitted)")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "Email address (prompted if omitted)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
