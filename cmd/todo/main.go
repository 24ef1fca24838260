package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/todo-app/cmd/todo/ui"
	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/entries"
	"github.com/redmonkez12/todo-app/internal/todo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		ui.PrintError(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var a *app

	rootCmd := &cobra.Command{
		Use:           "todo",
		Short:         "A to-do list that works offline and syncs to your account",
		Long:          "Manage to-do entries. Without an account entries are kept on this machine; after logging in they are moved to your account once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err = newApp(cfg, cmd.OutOrStdout())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	getApp := func() *app { return a }
	rootCmd.AddCommand(
		authCmd("signup", "Create an account and move guest entries into it", true, getApp),
		authCmd("login", "Log in and move guest entries into a new account", false, getApp),
		logoutCmd(getApp),
		statusCmd(getApp),
		addCmd(getApp),
		listCmd(getApp),
		showCmd(getApp),
		doneCmd(getApp),
		editCmd(getApp),
		rmCmd(getApp),
		syncCmd(getApp),
	)
	return rootCmd
}

func authCmd(use, short string, signUp bool, getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			email, _ := cmd.Flags().GetString("email")
			password := os.Getenv("TODO_PASSWORD")

			title := "Log in"
			if signUp {
				title = "Create account"
			}
			creds, err := ui.PromptCredentials(title, account.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}

			sess, err := a.authenticate(cmd.Context(), creds, signUp)
			if err != nil {
				if !a.loggedIn() {
					return err
				}
				// logged in, but the guest entries stayed behind
				ui.PrintNote(a.out, describe(err)+"; retrying on your next command")
			}

			ui.PrintSuccess(a.out, fmt.Sprintf("Logged in as %s", creds.Email))
			if n := len(sess.TodoEntries); n > 0 {
				ui.PrintNote(a.out, fmt.Sprintf("%d entries in your account", n))
			}
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email (prompted when omitted)")
	return cmd
}

func logoutCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out; entries created from now on stay on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if !a.loggedIn() {
				ui.PrintNote(a.out, "not logged in")
				return nil
			}
			if err := a.logout(cmd.Context()); err != nil {
				return err
			}
			ui.PrintSuccess(a.out, "Logged out")
			return nil
		},
	}
}

func statusCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who is logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if !a.loggedIn() {
				guest, err := a.local.Read(cmd.Context())
				if err != nil {
					return err
				}
				ui.PrintNote(a.out, fmt.Sprintf("guest mode, %d local entries (server %s)", len(guest), a.cfg.APIURL))
				return nil
			}
			sess := a.state.Session
			fmt.Fprintf(a.out, "%s (%s)\n", sess.Email, sess.ID)
			if sess.IsNewUser {
				ui.PrintNote(a.out, "guest entries not yet moved to this account")
			}
			return nil
		},
	}
}

func addCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add an entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			draft, err := draftFromFlags(cmd, args, time.Now())
			if err != nil {
				return err
			}
			if draft.Title == "" {
				if draft, err = ui.PromptDraft(draft); err != nil {
					return err
				}
			}

			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			entry, err := repo.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			ui.PrintSuccess(a.out, "Added "+ui.ShortID(entry.ID))
			return nil
		},
	}
	cmd.Flags().StringP("description", "d", "", "Description")
	cmd.Flags().StringP("priority", "p", string(todo.PriorityMedium), "low, medium or high")
	cmd.Flags().String("due", "", "Due date: 2026-01-31, \"2026-01-31 17:00\", 3d or 4h")
	return cmd
}

func draftFromFlags(cmd *cobra.Command, args []string, now time.Time) (todo.Draft, error) {
	var d todo.Draft
	if len(args) == 1 {
		d.Title = args[0]
	}
	d.Description, _ = cmd.Flags().GetString("description")

	raw, _ := cmd.Flags().GetString("priority")
	p, err := parsePriority(raw)
	if err != nil {
		return todo.Draft{}, err
	}
	d.Priority = p

	if due, _ := cmd.Flags().GetString("due"); due != "" {
		ms, err := parseDue(due, now)
		if err != nil {
			return todo.Draft{}, err
		}
		d.DueDate = &ms
	}
	return d, nil
}

func listCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			list, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}

			if pending, _ := cmd.Flags().GetBool("pending"); pending {
				list = slices.DeleteFunc(list, func(e todo.Entry) bool { return e.Completed })
			}

			heading := "Guest entries"
			if a.loggedIn() {
				heading = a.state.Session.Email
			}
			ui.PrintEntries(a.out, heading, list, time.Now())
			return nil
		},
	}
	cmd.Flags().Bool("pending", false, "Hide completed entries")
	return cmd
}

func showCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			_, entry, err := findEntry(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			ui.PrintEntry(a.out, entry)
			return nil
		},
	}
}

func doneCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an entry completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			undo, _ := cmd.Flags().GetBool("undo")
			completed := !undo
			return patchEntry(cmd.Context(), a, args[0], todo.Patch{Completed: &completed})
		},
	}
	cmd.Flags().Bool("undo", false, "Mark the entry not completed")
	return cmd
}

func editCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an entry's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			patch, err := patchFromFlags(cmd, time.Now())
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change; pass at least one flag")
			}
			return patchEntry(cmd.Context(), a, args[0], patch)
		},
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description")
	cmd.Flags().StringP("priority", "p", "", "low, medium or high")
	cmd.Flags().String("due", "", "New due date, or \"none\" to clear it")
	return cmd
}

// patchFromFlags only sets the fields whose flags were given
func patchFromFlags(cmd *cobra.Command, now time.Time) (todo.Patch, error) {
	var p todo.Patch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		p.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		p.Description = &v
	}
	if flags.Changed("priority") {
		raw, _ := flags.GetString("priority")
		prio, err := parsePriority(raw)
		if err != nil {
			return todo.Patch{}, err
		}
		p.Priority = &prio
	}
	if flags.Changed("due") {
		raw, _ := flags.GetString("due")
		if raw == "none" {
			p.ClearDueDate = true
		} else {
			ms, err := parseDue(raw, now)
			if err != nil {
				return todo.Patch{}, err
			}
			p.DueDate = &ms
		}
	}
	return p, nil
}

func rmCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			repo, entry, err := findEntry(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				ok, err := ui.Confirm(fmt.Sprintf("Delete %q?", entry.Title))
				if err != nil || !ok {
					return err
				}
			}

			if err := repo.Delete(cmd.Context(), entry.ID); err != nil {
				return err
			}
			ui.PrintSuccess(a.out, "Deleted "+ui.ShortID(entry.ID))
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func syncCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the session from the server and move any pending guest entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if !a.loggedIn() {
				return errors.New("not logged in")
			}

			fresh, err := a.client.Session(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.sessions.SaveSession(fresh); err != nil {
				return err
			}
			a.state.Session = fresh

			sess, err := a.reconcile(cmd.Context())
			if err != nil {
				return err
			}
			ui.PrintSuccess(a.out, fmt.Sprintf("Synced %d entries", len(sess.TodoEntries)))
			return nil
		},
	}
}

// findEntry resolves ref against the current entry list
func findEntry(ctx context.Context, a *app, ref string) (entries.Repository, todo.Entry, error) {
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, todo.Entry{}, err
	}
	list, err := repo.List(ctx)
	if err != nil {
		return nil, todo.Entry{}, err
	}
	id, err := resolveID(list, ref)
	if err != nil {
		return nil, todo.Entry{}, err
	}
	return repo, list[todo.IndexOf(list, id)], nil
}

func patchEntry(ctx context.Context, a *app, ref string, patch todo.Patch) error {
	repo, entry, err := findEntry(ctx, a, ref)
	if err != nil {
		return err
	}
	updated, err := repo.Update(ctx, entry.ID, patch)
	if err != nil {
		return err
	}
	ui.PrintEntry(a.out, updated)
	return nil
}
