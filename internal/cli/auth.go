package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kisan-sarthi/backend/internal/client"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/session"
)

func loginCmd(e *env) *cobra.Command {
	var phone, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a one-time code sent to your phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			requestID, err := e.api.SendOTP(ctx, phone)
			if err != nil {
				return fmt.Errorf("send code: %w", err)
			}
			fmt.Fprintf(out, "Code sent to %s\n", phone)

			if code == "" {
				fmt.Fprint(out, "Enter code: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read code: %w", err)
				}
				code = strings.TrimSpace(line)
			}

			sess, err := e.api.VerifyOTP(ctx, requestID, code)
			if err != nil {
				return fmt.Errorf("verify code: %w", err)
			}
			if err := e.sessions.Set(*sess); err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed in as %s\n", sess.Principal.Phone)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone number to sign in with")
	cmd.Flags().StringVar(&code, "code", "", "one-time code (prompted for when omitted)")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func logoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.sessions.Token() != "" {
				// An already expired or revoked token is still cleared locally.
				if err := e.api.Logout(cmd.Context()); err != nil && !client.IsUnauthorized(err) {
					e.log.Warn("server logout failed", logger.Error(err))
				}
			}
			if err := e.sessions.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.RequireSession(e.sessions)
			if err != nil {
				return err
			}
			if err := checkRemote(cmd, e); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Phone:   %s\n", sess.Principal.Phone)
			fmt.Fprintf(out, "User ID: %s\n", sess.Principal.ID)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

// checkRemote drops the local session when the server no longer accepts it.
func checkRemote(cmd *cobra.Command, e *env) error {
	_, err := e.api.Session(cmd.Context())
	if err == nil {
		return nil
	}
	if client.IsUnauthorized(err) {
		if cerr := e.sessions.Clear(); cerr != nil {
			return errors.Join(session.ErrNoSession, cerr)
		}
		return session.ErrNoSession
	}
	return err
}
