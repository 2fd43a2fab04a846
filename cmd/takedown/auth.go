package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/pkg/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

// prompt reads one line from stdin after printing label to stderr.
func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// ── login ────────────────────────────────────────────────────────────────────

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Login)); err != nil {
			return err
		}
		username := loginUsername
		if username == "" {
			var err error
			if username, err = prompt("Username: "); err != nil {
				return err
			}
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		sess, err := app.store.Login(cmd.Context(), client.Credentials{Username: username, Password: password})
		if err = record("login", err); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", sess.User.Username, sess.User.Role)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Account username (prompted when empty)")
}

// ── logout ───────────────────────────────────────────────────────────────────

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		who := app.store.Current().Username()
		if err := app.store.Logout(cmd.Context(), false); err != nil {
			return err
		}
		if who == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Logged out %s\n", who)
		return nil
	},
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	regUsername   string
	regProfileURL string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Request a moderator account (requires admin approval)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Register)); err != nil {
			return err
		}
		var err error
		reg := client.Registration{Username: regUsername, SHProfileURL: regProfileURL}
		if reg.Username == "" {
			if reg.Username, err = prompt("Username: "); err != nil {
				return err
			}
		}
		if reg.SHProfileURL == "" {
			if reg.SHProfileURL, err = prompt("ScribbleHub profile URL: "); err != nil {
				return err
			}
		}
		if reg.Password, err = promptPassword("Password: "); err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != reg.Password {
			return &client.ValidationError{Field: "password", Message: "passwords do not match"}
		}

		u, err := app.store.Register(cmd.Context(), reg)
		if err = record("register", err); err != nil {
			return err
		}
		fmt.Printf("Registered %s. An admin must approve the account before you can log in.\n", u.Username)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVarP(&regUsername, "username", "u", "", "Account username (prompted when empty)")
	registerCmd.Flags().StringVar(&regProfileURL, "profile", "", "ScribbleHub profile URL (prompted when empty)")
}

// ── whoami ───────────────────────────────────────────────────────────────────

var whoamiFormat string

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := app.store.Current()
		if whoamiFormat == "json" {
			if sess == nil {
				return printJSON(nil)
			}
			return printJSON(sess.User)
		}
		if sess == nil {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Username: %s\n", sess.User.Username)
		fmt.Printf("Role:     %s\n", sess.User.Role)
		if sess.User.SHProfileURL != "" {
			fmt.Printf("Profile:  %s\n", sess.User.SHProfileURL)
		}
		fmt.Printf("Admin:    %t\n", sess.IsAdmin())
		return nil
	},
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiFormat, "format", "text", "Output format: text or json")
}
