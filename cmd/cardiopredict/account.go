package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/a3tai/cardiopredict/internal/auth"
)

// ask returns current when set, otherwise prompts for it
func (a *app) ask(current *string, label string) error {
	if *current != "" {
		return nil
	}
	value, err := a.prompt(label + ": ")
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s is required", label)
	}
	if err != nil {
		return err
	}
	*current = value
	return nil
}

func newSignupCmd(a *app) *cobra.Command {
	var req auth.SignupRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, f := range []struct {
				value *string
				label string
			}{
				{&req.Username, "Username"},
				{&req.Email, "Email"},
				{&req.Phone, "Phone"},
				{&req.Password, "Password"},
			} {
				if err := a.ask(f.value, f.label); err != nil {
					return err
				}
			}

			msg, err := a.newAuthClient().Signup(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, msg)
			fmt.Fprintln(a.out, "You can now sign in with 'cardiopredict login'.")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "Account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var creds auth.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ask(&creds.Email, "Email"); err != nil {
				return err
			}
			if err := a.ask(&creds.Password, "Password"); err != nil {
				return err
			}

			session, err := a.newAuthClient().Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			if err := a.sessions.Save(session); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Signed in as %s\n", session.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := a.sessions.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			session, err := a.sessions.Load()
			if err != nil {
				return err
			}
			if !session.Authenticated() {
				fmt.Fprintln(a.out, "Not signed in")
				return nil
			}
			fmt.Fprintf(a.out, "%s <%s>\n", session.Username, session.Email)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous predictions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.requireSession()
			if err != nil {
				return err
			}

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), session.Email, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No predictions yet")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDISEASE\tRISK\tSCORE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), a.diseaseTitle(e.Disease), e.Risk, e.Score)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries (0 for all)")
	return cmd
}
