package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iudanet/contactsync/internal/client/data"
)

type companyFlags struct {
	name    string
	website string
}

func (f *companyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Company name")
	cmd.Flags().StringVar(&f.website, "website", "", "Website URL")
}

func newCompanyCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "company",
		Aliases: []string{"companies"},
		GroupID: "data",
		Short:   "Manage companies",
	}

	var addFlags companyFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a company",
		Args:  cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, cmd *cobra.Command, _ []string) error {
			name, err := c.prompt(addFlags.name, "Name")
			if err != nil {
				return err
			}
			company, err := c.data.AddCompany(ctx, data.CompanyInput{
				Name:    name,
				Website: changed(cmd, "website", addFlags.website),
			})
			if err != nil {
				return err
			}
			c.io.Printf("✓ Company added: %s (%s)\n", company.Name, company.ID)
			return nil
		}),
	}
	addFlags.register(add)

	var editFlags companyFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a company",
		Long:  "Edit a company. Only flags given explicitly are changed; an empty --website clears it.",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, cmd *cobra.Command, args []string) error {
			existing, err := c.data.FindCompany(ctx, args[0])
			if err != nil {
				return fmt.Errorf("company %s: %w", args[0], err)
			}
			company, err := c.data.EditCompany(ctx, existing.ID, data.CompanyPatch{
				Name:    changed(cmd, "name", editFlags.name),
				Website: changed(cmd, "website", editFlags.website),
			})
			if err != nil {
				return err
			}
			c.io.Printf("✓ Company updated: %s (%s)\n", company.Name, company.ID)
			return nil
		}),
	}
	editFlags.register(edit)

	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runCompanyList(ctx)
		}),
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show company details",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, args []string) error {
			co, err := c.data.FindCompany(ctx, args[0])
			if err != nil {
				return fmt.Errorf("company %s: %w", args[0], err)
			}
			c.io.Printf("ID:         %s\n", co.ID)
			c.io.Printf("Name:       %s\n", co.Name)
			c.io.Printf("Website:    %s\n", orDash(co.Website))
			c.printMeta(co.CreatedAt, co.UpdatedAt, co.Dirty)
			return nil
		}),
	}

	cmd.AddCommand(add, edit, list, show)
	return cmd
}

func (c *Cli) runCompanyList(ctx context.Context) error {
	companies, err := c.data.ListCompanies(ctx)
	if err != nil {
		return err
	}
	if len(companies) == 0 {
		c.io.Println("No companies. Add one with 'contactsync company add' or run 'contactsync sync'.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tWEBSITE\tSTATE")
	for _, co := range companies {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(co.ID), co.Name, deref(co.Website), recordState(co))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	c.io.Printf("\nTotal: %d company(ies)\n", len(companies))
	return nil
}
