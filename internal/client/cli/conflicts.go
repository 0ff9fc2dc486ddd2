package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/contactsync/internal/client/data"
	"github.com/iudanet/contactsync/internal/client/storage"
)

func newConflictsCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conflicts",
		Aliases: []string{"conflict"},
		GroupID: "sync",
		Short:   "Review local changes rejected by the server",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored conflicts",
		Args:  cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runConflictsList(ctx)
		}),
	}

	resubmit := &cobra.Command{
		Use:   "resubmit <entity/id | id prefix>",
		Short: "Restore your version as a new edit; it is pushed on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, args []string) error {
			key, err := c.conflictRef(ctx, args[0])
			if err != nil {
				return err
			}
			if err := c.data.ResubmitConflict(ctx, key); err != nil {
				return err
			}
			c.io.Printf("✓ %s restored; run 'contactsync sync' to push it\n", key)
			return nil
		}),
	}

	discard := &cobra.Command{
		Use:   "discard <entity/id | id prefix>",
		Short: "Drop your version and keep the server version",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, args []string) error {
			key, err := c.conflictRef(ctx, args[0])
			if err != nil {
				return err
			}
			if err := c.data.DiscardConflict(ctx, key); err != nil {
				return err
			}
			c.io.Printf("✓ %s discarded\n", key)
			return nil
		}),
	}

	cmd.AddCommand(list, resubmit, discard)
	return cmd
}

func (c *Cli) runConflictsList(ctx context.Context) error {
	conflicts, err := c.data.ListConflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		c.io.Println("No conflicts.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tYOUR VERSION\tDETECTED\tSERVER UPDATED")
	for _, conflict := range conflicts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			conflict.Key,
			summarize(conflict),
			humanize.Time(conflict.DetectedAt),
			conflict.ServerUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	c.io.Println()
	c.io.Println("Use 'contactsync conflicts resubmit <key>' to keep your version")
	c.io.Println("or 'contactsync conflicts discard <key>' to keep the server version.")
	return nil
}

// summarize короткое описание отклоненной версии
func summarize(conflict *storage.Conflict) string {
	var fields struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(conflict.Local, &fields); err != nil {
		return "?"
	}
	if fields.Name != "" {
		return fields.Name
	}
	return strings.TrimSpace(fields.FirstName + " " + fields.LastName)
}

// conflictRef находит конфликт по ключу "entity/id" или префиксу id
func (c *Cli) conflictRef(ctx context.Context, ref string) (storage.RecordKey, error) {
	if entity, id, ok := strings.Cut(ref, "/"); ok {
		return storage.ParseRecordKey(entity, id)
	}

	conflicts, err := c.data.ListConflicts(ctx)
	if err != nil {
		return storage.RecordKey{}, err
	}

	ref = strings.ToLower(ref)
	if len(ref) < data.MinRefLen {
		return storage.RecordKey{}, fmt.Errorf("id prefix must be at least %d characters", data.MinRefLen)
	}
	var matches []storage.RecordKey
	for _, conflict := range conflicts {
		if strings.HasPrefix(conflict.Key.ID.String(), ref) {
			matches = append(matches, conflict.Key)
		}
	}
	switch len(matches) {
	case 0:
		return storage.RecordKey{}, storage.ErrConflictNotFound
	case 1:
		return matches[0], nil
	default:
		return storage.RecordKey{}, data.ErrAmbiguousRef
	}
}
