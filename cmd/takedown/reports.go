package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/internal/reportitem"
	"github.com/jmerrifield20/takedown/internal/reportlist"
	"github.com/jmerrifield20/takedown/pkg/client"
	"github.com/spf13/cobra"
)

var reportKind string

var reportsCmd = &cobra.Command{
	Use:     "reports",
	Aliases: []string{"report"},
	Short:   "List, file and moderate reports",
}

func init() {
	reportsCmd.PersistentFlags().StringVarP(&reportKind, "kind", "k", "work", "Report kind: work or profile")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsCreateCmd)
	reportsCmd.AddCommand(reportsEditCmd)
	reportsCmd.AddCommand(reportsStatusCmd)
	reportsCmd.AddCommand(reportsApproveCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
}

// loadEngine fetches the collection of the selected kind.
func loadEngine(ctx context.Context) (*reportlist.Engine, error) {
	kind, err := client.ParseKind(reportKind)
	if err != nil {
		return nil, err
	}
	e := reportlist.New(app.api, kind, app.cfg.PageSize, app.logger.Named("reports"))
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// items returns one presenter per id, refusing ids the viewer cannot see.
func items(e *reportlist.Engine, ids []string) ([]*reportitem.Item, error) {
	out := make([]*reportitem.Item, 0, len(ids))
	for _, raw := range ids {
		r, ok := e.Get(client.ID(raw))
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", e.Kind(), raw, reportlist.ErrUnknownReport)
		}
		it := reportitem.New(r, app.store, e)
		if !it.Visible() {
			return nil, fmt.Errorf("%s %s: %w", e.Kind(), raw, reportlist.ErrUnknownReport)
		}
		out = append(out, it)
	}
	return out, nil
}

func approvedMark(r client.Report) string {
	if r.Approved {
		return "yes"
	}
	return "no"
}

// ── reports list ─────────────────────────────────────────────────────────────

var (
	listStatus string
	listSearch string
	listSort   string
	listDesc   bool
	listPage   int
	listFormat string
)

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports with filtering, search, sorting and paging",
	Long: `List shows one page of the reports visible to you.

Anonymous viewers see approved reports only; moderators see everything.

  takedown reports list --status in_progress --search dragon --sort title --desc`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Status)); err != nil {
			return err
		}
		key, err := reportlist.ParseSortKey(listSort)
		if err != nil {
			return err
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		if err := e.SetStatusFilter(client.Status(listStatus)); err != nil {
			return err
		}
		e.SetSearch(listSearch)
		e.SetSort(key, listDesc)
		e.SetPage(listPage)
		view := e.View(app.store)

		if listFormat == "json" {
			return printJSON(view)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tAPPROVED\tREPORTER\tREPORTED")
		for _, r := range view.Reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Title, r.Status, approvedMark(r), r.ReporterName(), formatTime(r.DateReported))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nPage %d of %d (%d %s)\n", view.Page, view.TotalPages, view.Total, e.Kind().Resource())
		return nil
	},
}

func init() {
	reportsListCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only show reports with this status")
	reportsListCmd.Flags().StringVarP(&listSearch, "search", "q", "", "Case-insensitive match on title or URL")
	reportsListCmd.Flags().StringVar(&listSort, "sort", "id", "Sort key: id, title or dateReported")
	reportsListCmd.Flags().BoolVar(&listDesc, "desc", false, "Sort descending")
	reportsListCmd.Flags().IntVarP(&listPage, "page", "p", 1, "Page number")
	reportsListCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

// ── reports show ─────────────────────────────────────────────────────────────

var showFormat string

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one report in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Status)); err != nil {
			return err
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		its, err := items(e, args)
		if err != nil {
			return err
		}
		r := its[0].Report()
		if showFormat == "json" {
			return printJSON(r)
		}
		printReport(r)
		return nil
	},
}

func init() {
	reportsShowCmd.Flags().StringVar(&showFormat, "format", "text", "Output format: text or json")
}

func printReport(r client.Report) {
	fmt.Printf("ID:          %s\n", r.ID)
	fmt.Printf("Title:       %s\n", r.Title)
	fmt.Printf("URL:         %s\n", r.URL)
	fmt.Printf("Status:      %s\n", r.Status)
	fmt.Printf("Approved:    %s\n", approvedMark(r))
	fmt.Printf("Reporter:    %s\n", r.ReporterName())
	fmt.Printf("Reported:    %s\n", formatTime(r.DateReported))
	if r.Reason != "" {
		fmt.Printf("Reason:      %s\n", r.Reason)
	}
	if r.AdditionalInfo != "" {
		fmt.Printf("Info:        %s\n", r.AdditionalInfo)
	}
	for i, p := range r.Proofs {
		fmt.Printf("Proof %-2d     %s\n", i+1, p)
	}
	if r.LastUpdated != nil {
		fmt.Printf("Updated:     %s by %s\n", formatTime(r.LastUpdated), r.UpdatedBy)
	}
}

// ── reports create ───────────────────────────────────────────────────────────

var (
	createTitle    string
	createURL      string
	createReason   string
	createProofs   []string
	createReporter string
)

var reportsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "File a new report",
	Long: `Create files a report against a work or a profile. New reports start as
pending_review and stay hidden from the public until a moderator approves them.

  takedown reports create --url https://example.com/stolen --reason "copied chapters" \
    --proof https://www.scribblehub.com/series/1/original/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.RequirementOf(guard.Report)); err != nil {
			return err
		}
		kind, err := client.ParseKind(reportKind)
		if err != nil {
			return err
		}
		reporter := createReporter
		if reporter == "" {
			reporter = app.store.Current().Username()
		}
		nr := client.NewReport{
			Title:    strings.TrimSpace(createTitle),
			URL:      strings.TrimSpace(createURL),
			Reason:   createReason,
			Proofs:   createProofs,
			Reporter: reporter,
		}
		if nr.Title == "" {
			nr.Title = nr.URL
		}
		if nr.Proofs == nil {
			nr.Proofs = []string{}
		}
		e := reportlist.New(app.api, kind, app.cfg.PageSize, app.logger.Named("reports"))
		r, err := e.Create(cmd.Context(), nr)
		if err = record("create", err); err != nil {
			return err
		}
		fmt.Printf("Created %s %s (%s)\n", kind, r.ID, r.Status)
		return nil
	},
}

func init() {
	reportsCreateCmd.Flags().StringVar(&createTitle, "title", "", "Title of the infringing work (defaults to the URL)")
	reportsCreateCmd.Flags().StringVar(&createURL, "url", "", "URL of the infringing work or profile")
	reportsCreateCmd.Flags().StringVar(&createReason, "reason", "", "Why this is a violation")
	reportsCreateCmd.Flags().StringArrayVar(&createProofs, "proof", nil, "Link proving the original (repeatable)")
	reportsCreateCmd.Flags().StringVar(&createReporter, "reporter", "", "Reporter nickname (defaults to your username)")
	_ = reportsCreateCmd.MarkFlagRequired("url")
	_ = reportsCreateCmd.MarkFlagRequired("reason")
}

// ── reports edit ─────────────────────────────────────────────────────────────

var (
	editTitle        string
	editURL          string
	editReason       string
	editInfo         string
	editAddProofs    []string
	editRemoveProofs []int
	editSetProofs    []string
)

var reportsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit report fields in one update",
	Long: `Edit stages every given field and submits them together. Only the flags you
pass are changed.

  takedown reports edit 12 --title "Renamed" --add-proof https://a.example/p
  takedown reports edit 12 --remove-proof 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.Moderator); err != nil {
			return err
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		its, err := items(e, args)
		if err != nil {
			return err
		}
		it := its[0]

		scalars := []struct {
			flag  string
			field reportitem.Field
			value string
		}{
			{"title", reportitem.FieldTitle, editTitle},
			{"url", reportitem.FieldURL, editURL},
			{"reason", reportitem.FieldReason, editReason},
			{"info", reportitem.FieldAdditionalInfo, editInfo},
		}
		for _, s := range scalars {
			if !cmd.Flags().Changed(s.flag) {
				continue
			}
			if err := it.Set(s.field, s.value); err != nil {
				return err
			}
		}
		if err := stageProofs(cmd, it); err != nil {
			return err
		}

		changed, err := it.Submit(cmd.Context())
		if err = record("edit", err); err != nil {
			return err
		}
		if !changed {
			fmt.Println("Nothing to change.")
			return nil
		}
		printReport(it.Report())
		return nil
	},
}

func init() {
	reportsEditCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	reportsEditCmd.Flags().StringVar(&editURL, "url", "", "New URL")
	reportsEditCmd.Flags().StringVar(&editReason, "reason", "", "New reason")
	reportsEditCmd.Flags().StringVar(&editInfo, "info", "", "New additional information")
	reportsEditCmd.Flags().StringArrayVar(&editSetProofs, "proof", nil, "Replace all proofs (repeatable)")
	reportsEditCmd.Flags().StringArrayVar(&editAddProofs, "add-proof", nil, "Append a proof link (repeatable)")
	reportsEditCmd.Flags().IntSliceVar(&editRemoveProofs, "remove-proof", nil, "Remove proof by 1-based position (repeatable)")
}

// stageProofs applies --proof, --remove-proof and --add-proof in that order.
func stageProofs(cmd *cobra.Command, it *reportitem.Item) error {
	if cmd.Flags().Changed("proof") {
		for n := len(it.Proofs()); n > 0; n-- {
			if err := it.RemoveProof(n - 1); err != nil {
				return err
			}
		}
		for _, p := range editSetProofs {
			if err := addProof(it, p); err != nil {
				return err
			}
		}
	}
	// Highest position first so earlier removals do not shift later ones.
	removals := slices.Clone(editRemoveProofs)
	slices.Sort(removals)
	slices.Reverse(removals)
	for _, pos := range removals {
		if err := it.RemoveProof(pos - 1); err != nil {
			return err
		}
	}
	for _, p := range editAddProofs {
		if err := addProof(it, p); err != nil {
			return err
		}
	}
	return nil
}

func addProof(it *reportitem.Item, p string) error {
	i, err := it.AddProof()
	if err != nil {
		return err
	}
	return it.SetProof(i, p)
}

// ── reports status ───────────────────────────────────────────────────────────

var reportsStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Change a report's status (also approves it)",
	Long: `Status sets a new moderation status. Any status valid for the kind may follow
any other.

  work:    pending_review in_progress confirmed taken_down original
  profile: pending_review in_progress confirmed_violator false_positive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.Moderator); err != nil {
			return err
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		its, err := items(e, args[:1])
		if err != nil {
			return err
		}
		it := its[0]
		if err := record("status", it.SetStatus(cmd.Context(), client.Status(args[1]))); err != nil {
			return err
		}
		r := it.Report()
		fmt.Printf("%s %s is now %s\n", e.Kind(), r.ID, r.Status)
		return nil
	},
}

// ── reports approve ──────────────────────────────────────────────────────────

var reportsApproveCmd = &cobra.Command{
	Use:   "approve <id> [id...]",
	Short: "Approve reports so the public can see them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.Moderator); err != nil {
			return err
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		its, err := items(e, args)
		if err != nil {
			return err
		}
		var errs []error
		for _, it := range its {
			id := it.Report().ID
			if err := record("approve", it.Approve(cmd.Context())); err != nil {
				errs = append(errs, fmt.Errorf("approve %s: %w", id, err))
				continue
			}
			fmt.Printf("Approved %s %s\n", e.Kind(), id)
		}
		return errors.Join(errs...)
	},
}

// ── reports delete ───────────────────────────────────────────────────────────

var deleteYes bool

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id> [id...]",
	Short: "Delete reports (admin only)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := require(guard.Admin); err != nil {
			return err
		}
		if !deleteYes {
			answer, err := prompt(fmt.Sprintf("Delete %d report(s)? [y/N] ", len(args)))
			if err != nil {
				return err
			}
			if !strings.EqualFold(strings.TrimSpace(answer), "y") {
				fmt.Println("Aborted.")
				return nil
			}
		}
		e, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		its, err := items(e, args)
		if err != nil {
			return err
		}
		var errs []error
		for _, it := range its {
			id := it.Report().ID
			if err := record("delete", it.Delete(cmd.Context())); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
				continue
			}
			fmt.Printf("Deleted %s %s\n", e.Kind(), id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	reportsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
}
