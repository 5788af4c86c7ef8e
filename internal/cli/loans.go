package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/bibliotheek/internal/entrypoint"
)

const defaultLoanDays = 14

func newLoansCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Lend and return books",
	}
	cmd.AddCommand(newLendCommand(opts), newReturnCommand(opts), newOverdueCommand(opts))
	return cmd
}

func newLendCommand(opts *options) *cobra.Command {
	var (
		bookID, memberID uint
		days             int
	)
	cmd := &cobra.Command{
		Use:   "lend",
		Short: "Lend a book to a member",
		Long: `Record a new loan. A book can be on loan to one member at a time.

Example:
  bibliotheek loans lend --book 3 --member 1 --days 21`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				loan, err := app.Syncer.Loans.Lend(ctx, bookID, memberID, now, now.AddDate(0, 0, days))
				if err != nil {
					return err
				}
				if opts.json {
					return outputAsJSON(cmd, loan)
				}
				outputText(cmd, "Loan %d: book %d to member %d, due %s\n",
					loan.ID, loan.BookID, loan.MemberID, formatDate(loan.DueDate))
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&bookID, "book", 0, "Book id")
	cmd.Flags().UintVar(&memberID, "member", 0, "Member id")
	cmd.Flags().IntVar(&days, "days", defaultLoanDays, "Loan period in days")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newReturnCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Mark a loan as returned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				loan, err := app.Syncer.ReturnLoan(ctx, id, time.Now())
				if err != nil {
					return err
				}
				if opts.json {
					return outputAsJSON(cmd, loan)
				}
				outputText(cmd, "Loan %d returned\n", loan.ID)
				return nil
			})
		},
	}
}

func newOverdueCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				loans, err := app.Syncer.Loans.Overdue(ctx, time.Now())
				if err != nil {
					return err
				}
				if opts.json {
					return outputAsJSON(cmd, loans)
				}
				if len(loans) == 0 {
					outputText(cmd, "No overdue loans\n")
					return nil
				}
				return printLoans(cmd, loans)
			})
		},
	}
}
