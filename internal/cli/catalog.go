package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/entrypoint"
)

func parseKind(s string) (entities.Kind, error) {
	for _, k := range entities.Kinds {
		if string(k) == s || string(k)+"s" == s {
			return k, nil
		}
	}
	if s == "categories" {
		return entities.KindCategory, nil
	}
	return "", fmt.Errorf("unknown kind %q (want category, book, member or loan)", s)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

func newListCommand(opts *options) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List categories, books, members or loans",
		Long: `List every record of a kind from the local cache. Unless --offline is
given the cache is refreshed from the remote first. Rows marked with * hold
local changes that have not been pushed yet.

Example:
  bibliotheek list books
  bibliotheek list loans --offline --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				return listKind(ctx, cmd, opts, app, kind, offline)
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the local cache only")
	return cmd
}

func listKind(ctx context.Context, cmd *cobra.Command, opts *options, app *entrypoint.App, kind entities.Kind, offline bool) error {
	switch kind {
	case entities.KindCategory:
		rows, err := pick(ctx, offline, app.Cache.Categories.GetAll, app.Syncer.Categories.GetAll)
		if err != nil || opts.json {
			return jsonOrErr(cmd, rows, err)
		}
		t := newTable(cmd.OutOrStdout(), "ID", "NAME", "")
		for _, c := range rows {
			t.row(fmt.Sprint(c.ID), c.Name, pendingMark(c.Pending()))
		}
		return t.flush()

	case entities.KindBook:
		rows, err := pick(ctx, offline, app.Cache.Books.GetAll, app.Syncer.Books.GetAll)
		if err != nil || opts.json {
			return jsonOrErr(cmd, rows, err)
		}
		t := newTable(cmd.OutOrStdout(), "ID", "TITLE", "AUTHOR", "ISBN", "YEAR", "CATEGORY", "")
		for _, b := range rows {
			t.row(fmt.Sprint(b.ID), b.Title, b.Author, b.ISBN, fmt.Sprint(b.PublicationYear), formatOptionalID(b.CategoryID), pendingMark(b.Pending()))
		}
		return t.flush()

	case entities.KindMember:
		rows, err := pick(ctx, offline, app.Cache.Members.GetAll, app.Syncer.Members.GetAll)
		if err != nil || opts.json {
			return jsonOrErr(cmd, rows, err)
		}
		t := newTable(cmd.OutOrStdout(), "ID", "NAME", "EMAIL", "PHONE", "SINCE", "")
		for _, m := range rows {
			t.row(fmt.Sprint(m.ID), m.FullName(), m.Email, m.Phone, formatDate(m.MembershipDate), pendingMark(m.Pending()))
		}
		return t.flush()

	default:
		rows, err := pick(ctx, offline, app.Cache.Loans.GetAll, app.Syncer.Loans.GetAll)
		if err != nil || opts.json {
			return jsonOrErr(cmd, rows, err)
		}
		return printLoans(cmd, rows)
	}
}

// pick always answers from the cache so unpushed rows keep their marks.
// Online, the orchestrator read runs first to refresh it.
func pick[T any](ctx context.Context, offline bool, cached, synced func(context.Context) ([]T, error)) ([]T, error) {
	if !offline {
		if _, err := synced(ctx); err != nil {
			return nil, err
		}
	}
	return cached(ctx)
}

func jsonOrErr(cmd *cobra.Command, v any, err error) error {
	if err != nil {
		return err
	}
	return outputAsJSON(cmd, v)
}

func printLoans(cmd *cobra.Command, loans []entities.Loan) error {
	t := newTable(cmd.OutOrStdout(), "ID", "BOOK", "MEMBER", "LENT", "DUE", "RETURNED", "")
	for _, l := range loans {
		returned := "-"
		if l.ReturnedAt != nil {
			returned = formatDate(*l.ReturnedAt)
		}
		t.row(fmt.Sprint(l.ID), fmt.Sprint(l.BookID), fmt.Sprint(l.MemberID),
			formatDate(l.LoanDate), formatDate(l.DueDate), returned, pendingMark(l.Pending()))
	}
	return t.flush()
}

func newAddCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a category, book or member",
	}
	cmd.AddCommand(newAddCategoryCommand(opts), newAddBookCommand(opts), newAddMemberCommand(opts))
	return cmd
}

func newAddCategoryCommand(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Add a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				c, err := app.Syncer.Categories.Create(ctx, &entities.Category{Name: name})
				if err != nil {
					return err
				}
				return opts.created(cmd, c, c.ID, c.Pending())
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Category name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAddBookCommand(opts *options) *cobra.Command {
	var (
		book       entities.Book
		categoryID uint
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Add a book",
		Long: `Add a book to the catalog.

Example:
  bibliotheek add book --title "Dune" --author "Frank Herbert" --isbn 9780441172719 --year 1965 --category 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if categoryID != 0 {
				book.CategoryID = &categoryID
			}
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				b, err := app.Syncer.Books.Create(ctx, &book)
				if err != nil {
					return err
				}
				return opts.created(cmd, b, b.ID, b.Pending())
			})
		},
	}
	cmd.Flags().StringVar(&book.Title, "title", "", "Title")
	cmd.Flags().StringVar(&book.Author, "author", "", "Author")
	cmd.Flags().StringVar(&book.ISBN, "isbn", "", "ISBN-10 or ISBN-13")
	cmd.Flags().IntVar(&book.PublicationYear, "year", 0, "Publication year")
	cmd.Flags().UintVar(&categoryID, "category", 0, "Category id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newAddMemberCommand(opts *options) *cobra.Command {
	var member entities.Member
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Add a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			member.MembershipDate = time.Now()
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				m, err := app.Syncer.Members.Create(ctx, &member)
				if err != nil {
					return err
				}
				return opts.created(cmd, m, m.ID, m.Pending())
			})
		},
	}
	cmd.Flags().StringVar(&member.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&member.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&member.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&member.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// created reports a new record, noting when it only exists locally so far.
func (o *options) created(cmd *cobra.Command, v any, id uint, op entities.PendingOp) error {
	if o.json {
		return outputAsJSON(cmd, v)
	}
	if op != entities.PendingNone {
		outputText(cmd, "Saved locally as %d, will be pushed on the next sync\n", id)
		return nil
	}
	outputText(cmd, "Created %d\n", id)
	return nil
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a category, book, member or loan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				var err error
				switch kind {
				case entities.KindCategory:
					err = app.Syncer.Categories.Delete(ctx, id)
				case entities.KindBook:
					err = app.Syncer.Books.Delete(ctx, id)
				case entities.KindMember:
					err = app.Syncer.Members.Delete(ctx, id)
				default:
					err = app.Syncer.Loans.Delete(ctx, id)
				}
				if err != nil {
					return err
				}
				outputText(cmd, "Deleted %s %d\n", kind, id)
				return nil
			})
		},
	}
}
