package main

import (
	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/internal/reportlist"
	"github.com/jmerrifield20/takedown/internal/tui"
	"github.com/jmerrifield20/takedown/pkg/client"
	"github.com/spf13/cobra"
)

var browseKind string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse and moderate reports interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Status)); err != nil {
			return err
		}
		kind, err := client.ParseKind(browseKind)
		if err != nil {
			return err
		}
		e := reportlist.New(app.api, kind, app.cfg.PageSize, app.logger.Named("reports"))
		m := tui.New(e, app.store, tui.Options{
			Notice:   app.store.TakeAuthError,
			OnAction: func(action string, err error) { _ = record(action, err) },
			Timeout:  app.cfg.Timeout,
		})
		return tui.Run(cmd.Context(), m)
	},
}

func init() {
	browseCmd.Flags().StringVarP(&browseKind, "kind", "k", "work", "Report kind: work or profile")
}
