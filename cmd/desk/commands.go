package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"librarydesk/internal/entity"
	"librarydesk/internal/lending"
	"librarydesk/internal/rolegate"
	"librarydesk/internal/search"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:                "desk",
		Short:              "Browse and manage the library catalog",
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests and state changes to stderr")
	root.SetOut(a.out)
	root.SetIn(a.in)

	root.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		booksCmd(a),
		addCmd(a),
		editCmd(a),
		deleteCmd(a),
		borrowCmd(a),
	)
	return root
}

func loginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				var err error
				if email, err = a.readLine("Email: "); err != nil {
					return err
				}
			}
			password, err := a.prompt("Password: ")
			if err != nil {
				return err
			}

			res, err := a.auth.Login(cmd.Context(), entity.Credentials{Email: email, Password: password})
			if err != nil {
				return loginError(err)
			}
			fmt.Fprintf(a.out, "Signed in as %s (%s).\n", email, res.Session.Role)
			printPermissions(a, res.Session.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// loginError phrases a failed login for the terminal. Field problems are listed one per line.
func loginError(err error) error {
	var verr *entity.ValidationError
	switch {
	case errors.As(err, &verr):
		msgs := make([]string, len(verr.Fields))
		for i, f := range verr.Fields {
			msgs[i] = f.Message
		}
		return errors.New(strings.Join(msgs, "\n"))
	case errors.Is(err, entity.ErrAuthentication):
		return errors.New("invalid email or password")
	}
	return err
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Subject: %s\nRole: %s\n", sess.Subject, sess.Role)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(a.out, "Expires: %s\n", sess.ExpiresAt.Format("2006-01-02 15:04"))
			}
			printPermissions(a, sess.Role)
			return nil
		},
	}
}

func printPermissions(a *app, role entity.Role) {
	perms, err := rolegate.Permissions(role)
	if err != nil {
		return
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms.List() {
		names = append(names, string(p))
	}
	fmt.Fprintf(a.out, "Allowed: %s\n", strings.Join(names, ", "))
}

func booksCmd(a *app) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := rolegate.Require(sess.Role, rolegate.View); err != nil {
				return err
			}
			store, _, err := a.catalogFor(cmd.Context(), sess)
			if err != nil {
				return err
			}

			var view search.View
			view.SetText(text)
			snap := store.Snapshot()
			printBooks(a.out, view.Apply(snap), rolegate.Allows(sess.Role, rolegate.Borrow))
			printStale(a.out, snap.Stale, snap.Err)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "search", "s", "", "only books whose title or category contains TEXT")
	return cmd
}

func addCmd(a *app) *cobra.Command {
	var fields entity.BookFields
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := a.controllerFor(cmd, lending.ActionAdd)
			if err != nil {
				return err
			}
			out, err := ctrl.AddBook(cmd.Context(), fields)
			return a.report(out, err, "Added")
		},
	}
	cmd.Flags().StringVar(&fields.Title, "title", "", "book title")
	cmd.Flags().StringVar(&fields.Author, "author", "", "book author")
	cmd.Flags().StringVar(&fields.Category, "category", "", "book category")
	return cmd
}

func editCmd(a *app) *cobra.Command {
	var (
		fields entity.BookFields
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a book's title, author or category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controllerFor(cmd, lending.ActionUpdate)
			if err != nil {
				return err
			}
			draft, err := ctrl.Edit(args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("title") {
				draft.SetTitle(fields.Title)
			}
			if flags.Changed("author") {
				draft.SetAuthor(fields.Author)
			}
			if flags.Changed("category") {
				draft.SetCategory(fields.Category)
			}
			if draft.Patch().Empty() {
				fmt.Fprintln(a.out, "Nothing to change.")
				return nil
			}

			printDraft(a.out, draft)
			if !yes {
				ok, err := a.confirm("Save changes?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Cancelled.")
					return nil
				}
			}
			draft.Confirm()

			out, err := ctrl.Commit(cmd.Context(), draft)
			return a.report(out, err, "Updated")
		},
	}
	cmd.Flags().StringVar(&fields.Title, "title", "", "new title")
	cmd.Flags().StringVar(&fields.Author, "author", "", "new author")
	cmd.Flags().StringVar(&fields.Category, "category", "", "new category")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "save without asking")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a book from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controllerFor(cmd, lending.ActionDelete)
			if err != nil {
				return err
			}
			out, err := ctrl.DeleteBook(cmd.Context(), args[0])
			return a.report(out, err, "Deleted")
		},
	}
}

func borrowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow ID",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controllerFor(cmd, lending.ActionBorrow)
			if err != nil {
				return err
			}
			out, err := ctrl.BorrowBook(cmd.Context(), args[0])
			return a.report(out, err, "Borrowed")
		},
	}
}

// controllerFor refuses the command before any network call when the session's role lacks the
// permission behind action.
func (a *app) controllerFor(cmd *cobra.Command, action lending.Action) (*lending.Controller, error) {
	sess, err := a.session(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := rolegate.Require(sess.Role, action.Permission()); err != nil {
		return nil, err
	}
	_, ctrl, err := a.catalogFor(cmd.Context(), sess)
	return ctrl, err
}

// report prints a mutation's result. The stale notice is printed whether or not err is nil.
func (a *app) report(out lending.Outcome, err error, verb string) error {
	if err == nil {
		fmt.Fprintf(a.out, "%s %s.\n", verb, describe(out.Book))
	}
	msg := ""
	if out.RefreshErr != nil {
		msg = out.RefreshErr.Error()
	}
	printStale(a.out, out.Stale, msg)
	return err
}
