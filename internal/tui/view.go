package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jmerrifield20/takedown/internal/reportitem"
	"github.com/jmerrifield20/takedown/pkg/client"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	colorError  = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}
	colorOK     = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#58D68D"}

	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleError    = lipgloss.NewStyle().Foreground(colorError)
	styleOK       = lipgloss.NewStyle().Foreground(colorOK)
	styleDetail   = lipgloss.NewStyle().PaddingLeft(4)
	stylePending  = lipgloss.NewStyle().Italic(true).Foreground(colorAccent)
)

var statusColors = map[client.Status]lipgloss.TerminalColor{
	client.StatusPendingReview:     colorMuted,
	client.StatusInProgress:        lipgloss.Color("#E1B12C"),
	client.StatusConfirmed:         colorError,
	client.StatusConfirmedViolator: colorError,
	client.StatusTakenDown:         colorOK,
	client.StatusOriginal:          colorOK,
	client.StatusFalsePositive:     colorOK,
}

func renderStatus(s client.Status) string {
	c, ok := statusColors[s]
	if !ok {
		c = colorMuted
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(s))
}

func (m Model) View() string {
	var b strings.Builder
	p := m.engine.Params()

	filter := "all"
	if p.Status != "" {
		filter = string(p.Status)
	}
	dir := "asc"
	if p.Desc {
		dir = "desc"
	}
	b.WriteString(styleHeader.Render(fmt.Sprintf("takedown · %s", m.engine.Kind().Resource())))
	b.WriteString(styleMuted.Render(fmt.Sprintf("   filter: %s   sort: %s %s   search: %q", filter, p.SortKey, dir, p.Search)))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(styleMuted.Render("loading…"))
		b.WriteString("\n")
	case len(m.view.Reports) == 0:
		b.WriteString(styleMuted.Render("no reports match"))
		b.WriteString("\n")
	}

	if !m.loading {
		for i, r := range m.view.Reports {
			it := m.items[r.ID]
			if it == nil || !it.Visible() {
				continue
			}
			b.WriteString(m.renderRow(i, it))
		}
	}

	b.WriteString("\n")
	b.WriteString(styleMuted.Render(fmt.Sprintf("page %d/%d · %d reports", m.view.Page, m.view.TotalPages, m.view.Total)))
	if m.busy > 0 {
		b.WriteString(styleMuted.Render(fmt.Sprintf(" · %d pending", m.busy)))
	}
	b.WriteString("\n")

	switch m.mode {
	case modeSearch, modeEdit:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.mode == modeEdit {
			b.WriteString(styleMuted.Render("tab: next field   enter: stage   esc: cancel"))
		} else {
			b.WriteString(styleMuted.Render("enter: apply   esc: cancel"))
		}
	case modeConfirmDelete:
		b.WriteString(styleError.Render("Delete this report? (y/N)"))
	default:
		if m.status != "" {
			if m.isError {
				b.WriteString(styleError.Render(m.status))
			} else {
				b.WriteString(styleOK.Render(m.status))
			}
			b.WriteString("\n")
		}
		b.WriteString(styleMuted.Render(m.help()))
	}
	return b.String()
}

func (m Model) renderRow(i int, it *reportitem.Item) string {
	r := it.Report()
	var b strings.Builder

	marker := "  "
	title := it.Value(reportitem.FieldTitle)
	if i == m.cursor {
		marker = "> "
		title = styleSelected.Render(title)
	}
	approved := ""
	if !r.Approved {
		approved = styleMuted.Render(" (unapproved)")
	}
	dirty := ""
	if it.Dirty() {
		dirty = stylePending.Render(" *")
	}
	fmt.Fprintf(&b, "%s#%-5s %s  %s%s%s\n", marker, r.ID, title, renderStatus(r.Status), approved, dirty)

	if !it.Expanded() {
		return b.String()
	}

	var lines []string
	field := func(label string, f reportitem.Field) {
		v := it.Value(f)
		if it.Pending(f) {
			v = stylePending.Render(v + " (staged)")
		}
		if msg := it.FieldError(f); msg != "" {
			v += " " + styleError.Render(msg)
		}
		lines = append(lines, fmt.Sprintf("%-10s %s", label, v))
	}
	field("url", reportitem.FieldURL)
	field("reason", reportitem.FieldReason)
	field("notes", reportitem.FieldAdditionalInfo)
	for j, proof := range it.Proofs() {
		lines = append(lines, fmt.Sprintf("%-10s %s", fmt.Sprintf("proof %d", j+1), proof))
	}
	lines = append(lines, fmt.Sprintf("%-10s %s", "reporter", r.ReporterName()))
	if r.DateReported != nil {
		lines = append(lines, fmt.Sprintf("%-10s %s", "reported", r.DateReported.Format("2006-01-02 15:04")))
	}
	if r.LastUpdated != nil {
		lines = append(lines, fmt.Sprintf("%-10s %s by %s", "updated", r.LastUpdated.Format("2006-01-02 15:04"), r.UpdatedBy))
	}
	b.WriteString(styleDetail.Width(max(20, m.width-2)).Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

func (m Model) help() string {
	parts := []string{"j/k: move", "enter: expand", "n/p: page", "/: search", "f: filter", "s/S: sort", "t: works/profiles", "r: reload"}
	if it := m.selected(); it != nil {
		if it.CanEdit() {
			statuses := m.engine.Kind().Statuses()
			keys := make([]string, len(statuses))
			for i, s := range statuses {
				keys[i] = fmt.Sprintf("%d=%s", i+1, s)
			}
			parts = append(parts, "a: approve", "e: edit", "w: save", "x: discard", strings.Join(keys, " "))
		}
		if it.CanDelete() {
			parts = append(parts, "d: delete")
		}
	}
	parts = append(parts, "q: quit")
	return strings.Join(parts, "  ")
}
