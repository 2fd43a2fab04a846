package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmerrifield20/takedown/internal/admin"
	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/pkg/client"
	"github.com/spf13/cobra"
)

// loadConsole checks the admin route and loads users and webhooks.
func loadConsole(ctx context.Context) (*admin.Console, error) {
	if err := require(guard.RequirementOf(guard.AdminURL)); err != nil {
		return nil, err
	}
	c := admin.New(app.api, app.logger.Named("admin"))
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ── users ────────────────────────────────────────────────────────────────────

var (
	usersFormat  string
	usersPending bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage moderator accounts (admin only)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConsole(cmd.Context())
		if err != nil {
			return err
		}
		users := c.Users()
		if usersPending {
			users = c.PendingUsers()
		}
		if usersFormat == "json" {
			return printJSON(users)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tAPPROVED\tPROFILE")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Role, u.Approved, u.SHProfileURL)
		}
		return w.Flush()
	},
}

// userAction builds a subcommand applying fn to every named account, given
// by id or username.
func userAction(use, short, action string, fn func(ctx context.Context, c *admin.Console, u client.User) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user> [user...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConsole(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			for _, ref := range args {
				u, err := c.FindUser(ref)
				if err == nil {
					err = record(action, fn(cmd.Context(), c, u))
				}
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Printf("%s: %s\n", u.Username, action)
			}
			return errors.Join(errs...)
		},
	}
}

func init() {
	usersListCmd.Flags().StringVar(&usersFormat, "format", "text", "Output format: text or json")
	usersListCmd.Flags().BoolVar(&usersPending, "pending", false, "Only accounts awaiting approval")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(userAction("approve", "Allow accounts to log in", "approved",
		func(ctx context.Context, c *admin.Console, u client.User) error {
			_, err := c.Approve(ctx, u.ID)
			return err
		}))
	usersCmd.AddCommand(userAction("block", "Stop accounts from logging in", "blocked",
		func(ctx context.Context, c *admin.Console, u client.User) error {
			_, err := c.Block(ctx, u.ID)
			return err
		}))
	usersCmd.AddCommand(userAction("promote", "Grant the admin role", "promoted",
		func(ctx context.Context, c *admin.Console, u client.User) error {
			_, err := c.SetRole(ctx, u.ID, client.RoleAdmin)
			return err
		}))
	usersCmd.AddCommand(userAction("demote", "Revoke the admin role", "demoted",
		func(ctx context.Context, c *admin.Console, u client.User) error {
			_, err := c.SetRole(ctx, u.ID, client.RoleUser)
			return err
		}))
	usersCmd.AddCommand(userAction("delete", "Delete accounts", "deleted",
		func(ctx context.Context, c *admin.Console, u client.User) error {
			return c.DeleteUser(ctx, u.ID)
		}))
}

// ── webhooks ─────────────────────────────────────────────────────────────────

var webhooksFormat string

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Manage notification webhooks (admin only)",
}

var webhooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConsole(cmd.Context())
		if err != nil {
			return err
		}
		hooks := c.Webhooks()
		if webhooksFormat == "json" {
			return printJSON(hooks)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL\tCREATED\tBY\tLAST USED")
		for _, h := range hooks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				h.ID, h.Name, h.URL, formatTime(h.Created), h.CreatedBy, formatTime(h.LastUsed))
		}
		return w.Flush()
	},
}

var webhooksAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a webhook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConsole(cmd.Context())
		if err != nil {
			return err
		}
		h, err := c.AddWebhook(cmd.Context(), args[0], args[1])
		if err = record("webhook_add", err); err != nil {
			return err
		}
		fmt.Printf("Added webhook %s (%s)\n", h.Name, h.ID)
		return nil
	},
}

var webhooksDeleteCmd = &cobra.Command{
	Use:   "delete <id> [id...]",
	Short: "Delete webhooks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConsole(cmd.Context())
		if err != nil {
			return err
		}
		var errs []error
		for _, id := range args {
			if err := record("webhook_delete", c.DeleteWebhook(cmd.Context(), client.ID(id))); err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Printf("Deleted webhook %s\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	webhooksListCmd.Flags().StringVar(&webhooksFormat, "format", "text", "Output format: text or json")

	webhooksCmd.AddCommand(webhooksListCmd)
	webhooksCmd.AddCommand(webhooksAddCmd)
	webhooksCmd.AddCommand(webhooksDeleteCmd)
}
