package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newSyncCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Push local changes and pull changes from the server",
		Args:    cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runSync(ctx)
		}),
	}
}

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()

	result, err := c.sync.Sync(ctx)
	if err != nil {
		return err
	}

	c.io.Println("✓ Synchronization completed")
	c.io.Println()
	c.io.Printf("Pushed to server:   %d change(s)\n", result.Pushed)
	c.io.Printf("Accepted by server: %d change(s)\n", result.Accepted)
	c.io.Printf("Pulled from server: %d record(s)\n", result.Pulled)

	if len(result.Errors) > 0 {
		c.io.Println()
		c.io.Printf("⚠️  %d change(s) rejected as invalid and kept locally:\n", len(result.Errors))
		for _, e := range result.Errors {
			c.io.Printf("  %s: %s\n", e.Key, e.Message)
		}
	}
	if len(result.Conflicts) > 0 {
		c.io.Println()
		c.io.Printf("⚠️  %d conflict(s): the server has newer versions of\n", len(result.Conflicts))
		for _, conflict := range result.Conflicts {
			c.io.Printf("  %s\n", conflict.Key)
		}
		c.io.Println("Your versions were saved. Review them with 'contactsync conflicts list'.")
	}
	return nil
}
