package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/contactsync/internal/client/auth"
)

func newRegisterCmd(st *rootState) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:     "register",
		GroupID: "session",
		Short:   "Create an account on the server",
		Args:    cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runRegister(ctx, email)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func (c *Cli) runRegister(ctx context.Context, email string) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	email, err := c.prompt(email, "Email")
	if err != nil {
		return err
	}
	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	resp, err := c.auth.Register(ctx, email, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", resp.UserID)
	c.io.Println("Run 'contactsync login' to start a session.")
	return nil
}

func newLoginCmd(st *rootState) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:     "login",
		GroupID: "session",
		Short:   "Log in and save the session locally",
		Args:    cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runLogin(ctx, email)
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func (c *Cli) runLogin(ctx context.Context, email string) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	email, err := c.prompt(email, "Email")
	if err != nil {
		return err
	}
	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if err := c.auth.Login(ctx, email, password); err != nil {
		return err
	}

	current, err := c.auth.Current(ctx)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Email: %s\n", current.Email)
	c.io.Println("Your session has been saved.")
	return nil
}

func newLogoutCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		GroupID: "session",
		Short:   "Revoke the session and remove it locally",
		Args:    cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			if err := c.auth.Logout(ctx); err != nil {
				return err
			}
			c.io.Println("✓ Logged out")
			return nil
		}),
	}
}

func newStatusCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "session",
		Short:   "Show session and synchronization status",
		Args:    cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runStatus(ctx, time.Now())
		}),
	}
}

func (c *Cli) runStatus(ctx context.Context, now time.Time) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	current, err := c.auth.Current(ctx)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.io.Println("Session: not authenticated")
		c.io.Println("Run 'contactsync login' to authenticate.")
	case err != nil:
		return err
	default:
		expiresAt := time.Unix(current.ExpiresAt, 0)
		c.io.Printf("Session: %s\n", current.Email)
		if expiresAt.After(now) {
			c.io.Printf("Access token expires %s\n", humanize.RelTime(expiresAt, now, "ago", "from now"))
		} else {
			c.io.Println("Access token expired; it will be refreshed on the next sync.")
		}
	}
	c.io.Println()

	state, err := c.state.GetSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}
	if state.LastSyncAt == nil {
		c.io.Println("Last sync: never")
	} else {
		c.io.Printf("Last sync: %s\n", humanize.RelTime(*state.LastSyncAt, now, "ago", "from now"))
	}

	pending, err := c.data.PendingChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending changes: %w", err)
	}
	conflicts, err := c.data.ListConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	if pending > 0 {
		c.io.Printf("⚠️  Pending sync: %d record(s) waiting to be synchronized\n", pending)
		c.io.Println("Run 'contactsync sync' to synchronize with server.")
	} else {
		c.io.Println("✓ All local changes synchronized")
	}
	if len(conflicts) > 0 {
		c.io.Printf("⚠️  %d conflict(s) need review: run 'contactsync conflicts list'\n", len(conflicts))
	}
	return nil
}
