package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/contactsync/internal/client/data"
	"github.com/iudanet/contactsync/internal/client/storage"
)

// contactFlags значения флагов add/edit
type contactFlags struct {
	first   string
	last    string
	email   string
	phone   string
	company string
}

func (f *contactFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.first, "first", "", "First name")
	flags.StringVar(&f.last, "last", "", "Last name")
	flags.StringVar(&f.email, "email", "", "Email address")
	flags.StringVar(&f.phone, "phone", "", "Phone number")
	flags.StringVar(&f.company, "company", "", "Company id or id prefix")
}

// changed возвращает значение флага, если он задан явно
func changed(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func newContactCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contact",
		Aliases: []string{"contacts"},
		GroupID: "data",
		Short:   "Manage contacts",
	}

	var addFlags contactFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a contact",
		Args:  cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, cmd *cobra.Command, _ []string) error {
			return c.runContactAdd(ctx, cmd, &addFlags)
		}),
	}
	addFlags.register(add)

	var editFlags contactFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a contact",
		Long:  "Edit a contact. Only flags given explicitly are changed; an empty value clears an optional field.",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, cmd *cobra.Command, args []string) error {
			return c.runContactEdit(ctx, cmd, args[0], &editFlags)
		}),
	}
	editFlags.register(edit)

	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, _ []string) error {
			return c.runContactList(ctx)
		}),
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show contact details",
		Args:  cobra.ExactArgs(1),
		RunE: st.runE(func(ctx context.Context, c *Cli, _ *cobra.Command, args []string) error {
			return c.runContactShow(ctx, args[0])
		}),
	}

	cmd.AddCommand(add, edit, list, show)
	return cmd
}

func (c *Cli) runContactAdd(ctx context.Context, cmd *cobra.Command, f *contactFlags) error {
	first, err := c.prompt(f.first, "First name")
	if err != nil {
		return err
	}
	last, err := c.prompt(f.last, "Last name")
	if err != nil {
		return err
	}

	in := data.ContactInput{
		FirstName: first,
		LastName:  last,
		Email:     changed(cmd, "email", f.email),
		Phone:     changed(cmd, "phone", f.phone),
	}
	if f.company != "" {
		companyID, err := c.companyRef(ctx, f.company)
		if err != nil {
			return err
		}
		in.CompanyID = &companyID
	}

	contact, err := c.data.AddContact(ctx, in)
	if err != nil {
		return err
	}
	c.io.Printf("✓ Contact added: %s (%s)\n", contact.DisplayName(), contact.ID)
	return nil
}

func (c *Cli) runContactEdit(ctx context.Context, cmd *cobra.Command, ref string, f *contactFlags) error {
	existing, err := c.data.FindContact(ctx, ref)
	if err != nil {
		return fmt.Errorf("contact %s: %w", ref, err)
	}

	patch := data.ContactPatch{
		FirstName: changed(cmd, "first", f.first),
		LastName:  changed(cmd, "last", f.last),
		Email:     changed(cmd, "email", f.email),
		Phone:     changed(cmd, "phone", f.phone),
		CompanyID: changed(cmd, "company", f.company),
	}
	if patch.CompanyID != nil && *patch.CompanyID != "" {
		companyID, err := c.companyRef(ctx, *patch.CompanyID)
		if err != nil {
			return err
		}
		patch.CompanyID = &companyID
	}

	contact, err := c.data.EditContact(ctx, existing.ID, patch)
	if err != nil {
		return err
	}
	c.io.Printf("✓ Contact updated: %s (%s)\n", contact.DisplayName(), contact.ID)
	return nil
}

// companyRef разрешает ссылку на компанию.
// Полный UUID принимается как есть: компания может быть еще не получена с сервера.
func (c *Cli) companyRef(ctx context.Context, ref string) (string, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id.String(), nil
	}
	company, err := c.data.FindCompany(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("company %s: %w", ref, err)
	}
	return company.ID.String(), nil
}

func (c *Cli) runContactList(ctx context.Context) error {
	contacts, err := c.data.ListContacts(ctx)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		c.io.Println("No contacts. Add one with 'contactsync contact add' or run 'contactsync sync'.")
		return nil
	}

	companies, err := c.companyNames(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tCOMPANY\tSTATE")
	for _, ct := range contacts {
		company := ""
		if ct.CompanyID != nil {
			company = companies[*ct.CompanyID]
			if company == "" {
				company = shortID(*ct.CompanyID)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(ct.ID), ct.DisplayName(), deref(ct.Email), deref(ct.Phone), company, recordState(ct))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	c.io.Printf("\nTotal: %d contact(s)\n", len(contacts))
	return nil
}

func (c *Cli) companyNames(ctx context.Context) (map[uuid.UUID]string, error) {
	companies, err := c.data.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(companies))
	for _, co := range companies {
		names[co.ID] = co.Name
	}
	return names, nil
}

func (c *Cli) runContactShow(ctx context.Context, ref string) error {
	ct, err := c.data.FindContact(ctx, ref)
	if err != nil {
		return fmt.Errorf("contact %s: %w", ref, err)
	}

	c.io.Printf("ID:         %s\n", ct.ID)
	c.io.Printf("First name: %s\n", ct.FirstName)
	c.io.Printf("Last name:  %s\n", ct.LastName)
	c.io.Printf("Email:      %s\n", orDash(ct.Email))
	c.io.Printf("Phone:      %s\n", orDash(ct.Phone))
	if ct.CompanyID != nil {
		company, err := c.data.GetCompany(ctx, *ct.CompanyID)
		switch {
		case err == nil:
			c.io.Printf("Company:    %s (%s)\n", company.Name, company.ID)
		case errors.Is(err, storage.ErrRecordNotFound):
			c.io.Printf("Company:    %s (not synchronized yet)\n", *ct.CompanyID)
		default:
			return err
		}
	} else {
		c.io.Println("Company:    -")
	}
	c.printMeta(ct.CreatedAt, ct.UpdatedAt, ct.Dirty)
	return nil
}
