// Package tui is the interactive report browser behind `takedown browse`.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jmerrifield20/takedown/internal/reportitem"
	"github.com/jmerrifield20/takedown/internal/reportlist"
	"github.com/jmerrifield20/takedown/pkg/client"
)

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeEdit
	modeConfirmDelete
)

var editFields = []reportitem.Field{
	reportitem.FieldTitle,
	reportitem.FieldURL,
	reportitem.FieldReason,
	reportitem.FieldAdditionalInfo,
}

var sortKeys = []reportlist.SortKey{reportlist.SortID, reportlist.SortTitle, reportlist.SortDateReported}

type loadedMsg struct{ err error }

type actionMsg struct {
	action string
	id     client.ID
	err    error
}

// Options are optional collaborators.
type Options struct {
	// Notice returns a one-shot message to show, such as a forced logout.
	Notice func() string
	// OnAction observes the outcome of every mutation.
	OnAction func(action string, err error)
	// Timeout bounds each backend call. Zero means 30s.
	Timeout time.Duration
}

// Model is the bubbletea model.
type Model struct {
	engine *reportlist.Engine
	viewer reportlist.Viewer
	opts   Options

	items  map[client.ID]*reportitem.Item
	view   reportlist.View
	cursor int

	mode      mode
	input     textinput.Model
	editField int

	loading bool
	busy    int
	status  string
	isError bool
	width   int
}

// New creates a browser over engine as seen by viewer. Pass the session
// store rather than a snapshot so a forced logout hides what the old
// session could see.
func New(engine *reportlist.Engine, viewer reportlist.Viewer, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	in := textinput.New()
	in.CharLimit = 2048
	m := Model{
		engine:  engine,
		viewer:  viewer,
		opts:    opts,
		items:   make(map[client.ID]*reportitem.Item),
		input:   in,
		loading: true,
		width:   100,
	}
	m.refresh()
	return m
}

// Run starts the browser on the alternate screen and blocks until it quits.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd { return m.load() }

func (m Model) load() tea.Cmd {
	engine, timeout := m.engine, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return loadedMsg{err: engine.Load(ctx)}
	}
}

// mutate runs fn against the engine off the UI loop.
func (m *Model) mutate(action string, id client.ID, fn func(ctx context.Context) error) tea.Cmd {
	m.busy++
	timeout := m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return actionMsg{action: action, id: id, err: fn(ctx)}
	}
}

// refresh re-derives the page and keeps one presenter per visible report.
func (m *Model) refresh() {
	m.view = m.engine.View(m.viewer)
	for _, r := range m.view.Reports {
		if it, ok := m.items[r.ID]; ok {
			it.Sync(r)
			continue
		}
		m.items[r.ID] = reportitem.New(r, m.viewer, m.engine)
	}
	if m.cursor >= len(m.view.Reports) {
		m.cursor = max(0, len(m.view.Reports)-1)
	}
}

func (m *Model) selected() *reportitem.Item {
	if m.cursor < 0 || m.cursor >= len(m.view.Reports) {
		return nil
	}
	return m.items[m.view.Reports[m.cursor].ID]
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status, m.isError = msg, isErr
}

func (m *Model) notice() {
	if m.opts.Notice == nil {
		return
	}
	if n := m.opts.Notice(); n != "" {
		m.setStatus(n, true)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		} else {
			m.setStatus(fmt.Sprintf("loaded %d %s", len(m.engine.Records()), m.engine.Kind().Resource()), false)
		}
		m.refresh()
		m.notice()
		return m, nil

	case actionMsg:
		m.busy--
		if m.opts.OnAction != nil {
			m.opts.OnAction(msg.action, msg.err)
		}
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("%s %s: done", msg.action, msg.id), false)
			if msg.action == "edit" {
				if it, ok := m.items[msg.id]; ok {
					it.CancelAll()
				}
			}
			if msg.action == "delete" {
				delete(m.items, msg.id)
			}
		}
		m.refresh()
		m.notice()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeEdit:
			return m.updateEdit(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.refresh()
	it := m.selected()
	key := msg.String()

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.view.Reports)-1 {
			m.cursor++
		}
	case "enter", " ":
		if it != nil {
			it.Toggle()
		}

	case "right", "n":
		m.engine.SetPage(m.view.Page + 1)
		m.cursor = 0
		m.refresh()
	case "left", "p":
		if m.view.Page > 1 {
			m.engine.SetPage(m.view.Page - 1)
			m.cursor = 0
			m.refresh()
		}

	case "/":
		m.mode = modeSearch
		m.input.SetValue(m.engine.Params().Search)
		m.input.Prompt = "search: "
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd

	case "f":
		m.cycleFilter()
		m.cursor = 0
		m.refresh()
	case "s":
		p := m.engine.Params()
		m.engine.SetSort(nextSortKey(p.SortKey), p.Desc)
		m.refresh()
	case "S":
		p := m.engine.Params()
		m.engine.SetSort(p.SortKey, !p.Desc)
		m.refresh()

	case "t":
		next := client.KindProfile
		if m.engine.Kind() == client.KindProfile {
			next = client.KindWork
		}
		if err := m.engine.SetKind(next); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.items = make(map[client.ID]*reportitem.Item)
		m.cursor = 0
		m.loading = true
		m.refresh()
		return m, m.load()
	case "r":
		m.loading = true
		return m, m.load()

	case "a":
		if it == nil {
			return m, nil
		}
		if !it.CanEdit() {
			m.setStatus(reportitem.ErrForbidden.Error(), true)
			return m, nil
		}
		id := it.Report().ID
		cmd := m.mutate("approve", id, func(ctx context.Context) error {
			_, err := m.engine.Approve(ctx, id)
			return err
		})
		return m, cmd

	case "1", "2", "3", "4", "5":
		if it == nil {
			return m, nil
		}
		if !it.CanEdit() {
			m.setStatus(reportitem.ErrForbidden.Error(), true)
			return m, nil
		}
		statuses := m.engine.Kind().Statuses()
		i := int(key[0] - '1')
		if i >= len(statuses) {
			return m, nil
		}
		id, status := it.Report().ID, statuses[i]
		cmd := m.mutate("status", id, func(ctx context.Context) error {
			return m.engine.UpdateStatus(ctx, id, status)
		})
		return m, cmd

	case "e":
		if it == nil {
			return m, nil
		}
		if !it.CanEdit() {
			m.setStatus(reportitem.ErrForbidden.Error(), true)
			return m, nil
		}
		m.mode = modeEdit
		m.editField = 0
		m.loadEditField(it)
		cmd := m.input.Focus()
		return m, cmd

	case "x":
		if it != nil {
			it.CancelAll()
			m.setStatus("staged edits discarded", false)
		}

	case "w":
		if it == nil {
			return m, nil
		}
		if !it.Dirty() {
			m.setStatus("nothing to save", false)
			return m, nil
		}
		patch := it.Patch()
		if err := patch.Validate(); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		id := it.Report().ID
		cmd := m.mutate("edit", id, func(ctx context.Context) error {
			_, err := m.engine.Update(ctx, id, patch)
			return err
		})
		return m, cmd

	case "d":
		if it == nil {
			return m, nil
		}
		if !it.CanDelete() {
			m.setStatus(reportitem.ErrForbidden.Error(), true)
			return m, nil
		}
		m.mode = modeConfirmDelete
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.engine.SetSearch(m.input.Value())
		m.mode = modeBrowse
		m.input.Blur()
		m.cursor = 0
		m.refresh()
		return m, nil
	case "esc":
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	it := m.selected()
	if it == nil {
		m.mode = modeBrowse
		return m, nil
	}
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case "tab":
		m.stageEditField(it)
		m.editField = (m.editField + 1) % len(editFields)
		m.loadEditField(it)
		return m, nil
	case "enter":
		m.stageEditField(it)
		m.mode = modeBrowse
		m.input.Blur()
		if msg := it.FieldError(editFields[m.editField]); msg != "" {
			m.setStatus(msg, true)
		} else {
			m.setStatus("staged; press w to save", false)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = modeBrowse
	it := m.selected()
	if it == nil || msg.String() != "y" {
		m.setStatus("delete cancelled", false)
		return m, nil
	}
	id := it.Report().ID
	cmd := m.mutate("delete", id, func(ctx context.Context) error {
		return m.engine.Remove(ctx, id)
	})
	return m, cmd
}

func (m *Model) loadEditField(it *reportitem.Item) {
	f := editFields[m.editField]
	m.input.Prompt = string(f) + ": "
	m.input.SetValue(it.Value(f))
	m.input.CursorEnd()
}

// stageEditField stages the input value when it differs from the record.
func (m *Model) stageEditField(it *reportitem.Item) {
	f := editFields[m.editField]
	v := m.input.Value()
	if v == it.Value(f) {
		return
	}
	if err := it.Set(f, v); err != nil {
		m.setStatus(err.Error(), true)
	}
}

func (m *Model) cycleFilter() {
	statuses := m.engine.Kind().Statuses()
	cur := m.engine.Params().Status
	next := client.Status("")
	if cur == "" {
		next = statuses[0]
	} else {
		for i, s := range statuses {
			if s == cur && i+1 < len(statuses) {
				next = statuses[i+1]
			}
		}
	}
	if err := m.engine.SetStatusFilter(next); err != nil {
		m.setStatus(err.Error(), true)
	}
}

func nextSortKey(k reportlist.SortKey) reportlist.SortKey {
	for i, s := range sortKeys {
		if s == k {
			return sortKeys[(i+1)%len(sortKeys)]
		}
	}
	return reportlist.SortID
}
