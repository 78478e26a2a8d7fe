package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nao1215/leakbox/internal/database"
	"github.com/spf13/cobra"
)

// NewUsersCmd creates the users command.
func NewUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List issued honeypot addresses",
		Long: `Users lists every address issued through /register with the site it was
registered for and the number of messages it has received.`,
		Args: cobra.NoArgs,
		RunE: runUsersCmd,
	}
}

func runUsersCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateOffline(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	newLogger(cmd, cfg)

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return listUsers(cmd.Context(), db, cmd.OutOrStdout())
}

func listUsers(ctx context.Context, db *database.MailDB, out io.Writer) error {
	users, err := db.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	mails, err := db.MailEvents(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list mail events: %w", err)
	}
	received := make(map[string]int, len(users))
	for _, m := range mails {
		received[m.Recipient]++
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tSITE\tURL\tMAILS\tREGISTERED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			u.ID, u.Email, u.RegistrationSite, u.RegistrationURL, received[u.Email],
			u.RegisteredAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
