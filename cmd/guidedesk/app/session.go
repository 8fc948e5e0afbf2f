package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	desk "github.com/guidedesk/guidedesk/internal/app"
	"github.com/guidedesk/guidedesk/internal/session"
)

// withDeps bootstraps the client stack for one command.
func withDeps(opts *rootOptions, fn func(d *desk.Deps) error) error {
	d, err := desk.Bootstrap(opts.app())
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

// requireSession fails unless a token is stored.
func requireSession(d *desk.Deps) (session.Session, error) {
	sess, err := d.Sessions.Load()
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !sess.LoggedIn() {
		return session.Session{}, desk.ErrLoginRequired
	}
	return sess, nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in against the API. The token goes to the OS keyring when one is
available and to the state file otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.ErrOrStderr()
			if strings.TrimSpace(username) == "" {
				name, err := prompt(in, out, "Username: ")
				if err != nil {
					return err
				}
				username = name
			}
			password, err := readPassword(in, out, passwordStdin)
			if err != nil {
				return err
			}
			return withDeps(opts, func(d *desk.Deps) error {
				user, err := desk.Login(cmd.Context(), d, username, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s) at %s\n", user.Username, user.Role, d.Client.BaseURL())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name (prompted when empty)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session and cached listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, func(d *desk.Deps) error {
				if err := desk.Logout(d); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise.
func readPassword(in *bufio.Reader, out io.Writer, fromStdin bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if fromStdin || !term.IsTerminal(fd) {
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(out, "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
