package reportlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmerrifield20/takedown/pkg/client"
	"go.uber.org/zap"
)

// ErrUnknownReport is returned when a mutation names an id that is not in
// the loaded collection.
var ErrUnknownReport = errors.New("report not in collection")

// API is the subset of the takedown client the engine calls.
type API interface {
	ListReports(ctx context.Context, kind client.Kind) ([]client.Report, error)
	CreateReport(ctx context.Context, kind client.Kind, nr client.NewReport) (*client.Report, error)
	UpdateReport(ctx context.Context, kind client.Kind, id client.ID, patch client.ReportPatch) (*client.Report, error)
	UpdateReportStatus(ctx context.Context, kind client.Kind, id client.ID, status client.Status) (*client.Report, error)
	ApproveReport(ctx context.Context, kind client.Kind, id client.ID) (*client.Report, error)
	DeleteReport(ctx context.Context, kind client.Kind, id client.ID) error
}

// Engine owns the in-memory collection for one report kind. Mutations may
// run concurrently; the last one to resolve wins locally.
type Engine struct {
	api    API
	logger *zap.Logger

	mu      sync.Mutex
	kind    client.Kind
	records []client.Report
	params  Params
}

// New creates an Engine for kind. pageSize <= 0 selects DefaultPageSize.
func New(api API, kind client.Kind, pageSize int, logger *zap.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		api:    api,
		logger: logger,
		kind:   kind,
		params: Params{SortKey: SortID, Page: 1, PageSize: pageSize},
	}
}

// Kind returns the report kind the engine currently holds.
func (e *Engine) Kind() client.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

// Params returns the current view inputs.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Load fetches the collection for the current kind. A response that
// arrives after the kind was switched is discarded.
func (e *Engine) Load(ctx context.Context) error {
	kind := e.Kind()
	records, err := e.api.ListReports(ctx, kind)
	if err != nil {
		return fmt.Errorf("load %s: %w", kind.Resource(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind != kind {
		return nil
	}
	e.records = records
	return nil
}

// Replace swaps in a collection without calling the API.
func (e *Engine) Replace(records []client.Report) {
	cp := make([]client.Report, len(records))
	for i, r := range records {
		cp[i] = r.Clone()
	}
	e.mu.Lock()
	e.records = cp
	e.mu.Unlock()
}

// Records returns a copy of the whole collection, unfiltered.
func (e *Engine) Records() []client.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]client.Report, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns one record by id.
func (e *Engine) Get(id client.ID) (client.Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOf(id); i >= 0 {
		return e.records[i].Clone(), true
	}
	return client.Report{}, false
}

// View derives the visible page for v and clamps the stored page to it.
func (e *Engine) View(v Viewer) View {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := Derive(e.records, e.params, v)
	e.params.Page = view.Page
	return view
}

// SetStatusFilter selects one status, or all when status is empty. The page
// resets to 1.
func (e *Engine) SetStatusFilter(status client.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status != "" && !e.kind.Allows(status) {
		return &client.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a %s status", status, e.kind)}
	}
	e.params.Status = status
	e.params.Page = 1
	return nil
}

// SetSearch sets the title/url substring filter. The page resets to 1.
func (e *Engine) SetSearch(text string) {
	e.mu.Lock()
	e.params.Search = text
	e.params.Page = 1
	e.mu.Unlock()
}

// SetSort sets the ordering. The page is kept.
func (e *Engine) SetSort(key SortKey, desc bool) {
	e.mu.Lock()
	e.params.SortKey = key
	e.params.Desc = desc
	e.mu.Unlock()
}

// SetPage selects a page; View clamps it when out of range.
func (e *Engine) SetPage(page int) {
	e.mu.Lock()
	e.params.Page = page
	e.mu.Unlock()
}

// SetKind switches to another report kind. The collection belongs to the
// old kind and is dropped; the status filter is cleared and the page resets.
func (e *Engine) SetKind(kind client.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown report kind %q", kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if kind != e.kind {
		e.records = nil
		e.params.Status = ""
	}
	e.kind = kind
	e.params.Page = 1
	return nil
}

// Create submits a new report and adds the stored record to the collection.
func (e *Engine) Create(ctx context.Context, nr client.NewReport) (client.Report, error) {
	if err := nr.Validate(); err != nil {
		return client.Report{}, err
	}
	kind := e.Kind()
	r, err := e.api.CreateReport(ctx, kind, nr)
	if err != nil {
		e.logger.Warn("create report failed", zap.String("kind", string(kind)), zap.Error(err))
		return client.Report{}, fmt.Errorf("create report: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind == kind {
		e.upsert(*r)
	}
	return r.Clone(), nil
}

// Update sends a partial update and replaces the local record with the
// server's. On failure the collection is left unchanged.
func (e *Engine) Update(ctx context.Context, id client.ID, patch client.ReportPatch) (client.Report, error) {
	if err := patch.Validate(); err != nil {
		return client.Report{}, err
	}
	kind := e.Kind()
	current, ok := e.Get(id)
	if !ok {
		return client.Report{}, fmt.Errorf("update report %s: %w", id, ErrUnknownReport)
	}
	if patch.Empty() {
		return current, nil
	}

	r, err := e.api.UpdateReport(ctx, kind, id, patch)
	if err != nil {
		e.logger.Warn("update report failed", zap.String("id", id.String()), zap.Error(err))
		return client.Report{}, fmt.Errorf("update report %s: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind == kind {
		e.replace(id, *r)
	}
	return r.Clone(), nil
}

// UpdateStatus sets the status optimistically: the local record shows the
// new status, approved, before the backend answers. A rejection restores
// the status and approval captured before the call.
func (e *Engine) UpdateStatus(ctx context.Context, id client.ID, status client.Status) error {
	e.mu.Lock()
	kind := e.kind
	if !kind.Allows(status) {
		e.mu.Unlock()
		return &client.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a %s status", status, kind)}
	}
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("update status of %s: %w", id, ErrUnknownReport)
	}
	prevStatus, prevApproved := e.records[i].Status, e.records[i].Approved
	e.records[i].Status = status
	e.records[i].Approved = true
	e.mu.Unlock()

	r, err := e.api.UpdateReportStatus(ctx, kind, id, status)

	e.mu.Lock()
	defer e.mu.Unlock()
	// After a kind switch the collection holds another kind's records
	// and the result is discarded, rollback included.
	current := e.kind == kind
	if err != nil {
		if j := e.indexOf(id); current && j >= 0 {
			e.records[j].Status = prevStatus
			e.records[j].Approved = prevApproved
		}
		e.logger.Warn("status update rolled back",
			zap.String("id", id.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	if current && r != nil {
		e.replace(id, *r)
	}
	return nil
}

// Approve marks a report approved and replaces it with the server's record.
func (e *Engine) Approve(ctx context.Context, id client.ID) (client.Report, error) {
	kind := e.Kind()
	if _, ok := e.Get(id); !ok {
		return client.Report{}, fmt.Errorf("approve report %s: %w", id, ErrUnknownReport)
	}
	r, err := e.api.ApproveReport(ctx, kind, id)
	if err != nil {
		e.logger.Warn("approve report failed", zap.String("id", id.String()), zap.Error(err))
		return client.Report{}, fmt.Errorf("approve report %s: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind == kind {
		e.replace(id, *r)
	}
	return r.Clone(), nil
}

// Remove deletes a report and drops it from the collection once the backend
// confirms.
func (e *Engine) Remove(ctx context.Context, id client.ID) error {
	kind := e.Kind()
	if _, ok := e.Get(id); !ok {
		return fmt.Errorf("remove report %s: %w", id, ErrUnknownReport)
	}
	if err := e.api.DeleteReport(ctx, kind, id); err != nil {
		e.logger.Warn("remove report failed", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("remove report %s: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOf(id); e.kind == kind && i >= 0 {
		e.records = append(e.records[:i], e.records[i+1:]...)
	}
	return nil
}

// indexOf must be called with mu held.
func (e *Engine) indexOf(id client.ID) int {
	for i := range e.records {
		if e.records[i].ID == id {
			return i
		}
	}
	return -1
}

// replace swaps the record with id for r, keeping the engine's kind. A record
// removed while the call was in flight stays removed. mu must be held.
func (e *Engine) replace(id client.ID, r client.Report) {
	i := e.indexOf(id)
	if i < 0 {
		return
	}
	if r.ID == "" {
		r.ID = id
	}
	r.Kind = e.kind
	e.records[i] = r.Clone()
}

// upsert must be called with mu held.
func (e *Engine) upsert(r client.Report) {
	r.Kind = e.kind
	if i := e.indexOf(r.ID); i >= 0 {
		e.records[i] = r.Clone()
		return
	}
	e.records = append(e.records, r.Clone())
}
