// Package reportitem presents one report: an expandable detail view and a
// staging area for field edits that are submitted as one partial update.
package reportitem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/takedown/internal/reportlist"
	"github.com/jmerrifield20/takedown/pkg/client"
)

// ErrForbidden is returned for intents the viewer's role does not allow.
var ErrForbidden = errors.New("not permitted for this account")

// Field names an editable report field.
type Field string

const (
	FieldTitle          Field = "title"
	FieldURL            Field = "url"
	FieldReason         Field = "reason"
	FieldAdditionalInfo Field = "additionalInfo"
	FieldProofs         Field = "proofs"
)

var fields = []Field{FieldTitle, FieldURL, FieldReason, FieldAdditionalInfo, FieldProofs}

// ParseField maps a user-facing name onto a Field.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldTitle, FieldURL, FieldReason, FieldAdditionalInfo, FieldProofs:
		return Field(s), nil
	}
	if s == "info" {
		return FieldAdditionalInfo, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Mutator applies intents. *reportlist.Engine satisfies it.
type Mutator interface {
	Get(id client.ID) (client.Report, bool)
	Update(ctx context.Context, id client.ID, patch client.ReportPatch) (client.Report, error)
	UpdateStatus(ctx context.Context, id client.ID, status client.Status) error
	Approve(ctx context.Context, id client.ID) (client.Report, error)
	Remove(ctx context.Context, id client.ID) error
}

// Item is the presenter for one report.
type Item struct {
	report   client.Report
	viewer   reportlist.Viewer
	mut      Mutator
	expanded bool

	// pending holds staged scalar edits; proofs is nil until staged.
	pending map[Field]string
	proofs  []string
	errs    map[Field]string
}

// New creates a presenter for r as seen by v.
func New(r client.Report, v reportlist.Viewer, m Mutator) *Item {
	return &Item{
		report:  r.Clone(),
		viewer:  v,
		mut:     m,
		pending: make(map[Field]string),
		errs:    make(map[Field]string),
	}
}

// Report returns the committed record.
func (it *Item) Report() client.Report { return it.report.Clone() }

// Sync replaces the committed record, keeping staged edits and the
// expanded state.
func (it *Item) Sync(r client.Report) { it.report = r.Clone() }

// Visible reports whether the viewer may see the report at all. Hidden
// items render nothing.
func (it *Item) Visible() bool { return reportlist.Visible(it.report, it.viewer) }

// CanEdit reports whether the viewer may stage edits, change the status and
// approve.
func (it *Item) CanEdit() bool { return it.viewer != nil && it.viewer.IsModerator() && it.Visible() }

// CanDelete reports whether the viewer may delete the report.
func (it *Item) CanDelete() bool { return it.viewer != nil && it.viewer.IsAdmin() && it.Visible() }

// Toggle flips the expanded detail view.
func (it *Item) Toggle() { it.expanded = !it.expanded }

// Expanded reports whether the detail view is open.
func (it *Item) Expanded() bool { return it.expanded }

// Set stages a new value for a scalar field.
func (it *Item) Set(f Field, value string) error {
	if !it.CanEdit() {
		return ErrForbidden
	}
	switch f {
	case FieldTitle, FieldURL, FieldReason, FieldAdditionalInfo:
	case FieldProofs:
		return errors.New("proofs are edited one entry at a time")
	default:
		return fmt.Errorf("unknown field %q", f)
	}
	it.pending[f] = value
	it.check(f)
	return nil
}

// Value returns the staged value of f, or the committed one.
func (it *Item) Value(f Field) string {
	if v, ok := it.pending[f]; ok {
		return v
	}
	switch f {
	case FieldTitle:
		return it.report.Title
	case FieldURL:
		return it.report.URL
	case FieldReason:
		return it.report.Reason
	case FieldAdditionalInfo:
		return it.report.AdditionalInfo
	case FieldProofs:
		return strings.Join(it.Proofs(), "\n")
	}
	return ""
}

// Pending reports whether f has a staged edit.
func (it *Item) Pending(f Field) bool {
	if f == FieldProofs {
		return it.proofs != nil
	}
	_, ok := it.pending[f]
	return ok
}

// Dirty reports whether any field has a staged edit.
func (it *Item) Dirty() bool { return len(it.pending) > 0 || it.proofs != nil }

// Cancel discards the staged edit of one field.
func (it *Item) Cancel(f Field) {
	if f == FieldProofs {
		it.proofs = nil
	} else {
		delete(it.pending, f)
	}
	delete(it.errs, f)
}

// CancelAll discards every staged edit.
func (it *Item) CancelAll() {
	clear(it.pending)
	clear(it.errs)
	it.proofs = nil
}

// Proofs returns the staged proof list, or the committed one.
func (it *Item) Proofs() []string {
	if it.proofs != nil {
		return append([]string(nil), it.proofs...)
	}
	return append([]string(nil), it.report.Proofs...)
}

// stageProofs seeds the pending proof list from the committed one.
func (it *Item) stageProofs() {
	if it.proofs == nil {
		it.proofs = append([]string{}, it.report.Proofs...)
	}
}

// AddProof appends an empty slot to the staged proofs and returns its index.
func (it *Item) AddProof() (int, error) {
	if !it.CanEdit() {
		return 0, ErrForbidden
	}
	it.stageProofs()
	it.proofs = append(it.proofs, "")
	return len(it.proofs) - 1, nil
}

// SetProof stages a new value for proof i.
func (it *Item) SetProof(i int, value string) error {
	if !it.CanEdit() {
		return ErrForbidden
	}
	it.stageProofs()
	if i < 0 || i >= len(it.proofs) {
		return fmt.Errorf("proof index %d out of range [0,%d)", i, len(it.proofs))
	}
	it.proofs[i] = value
	it.check(FieldProofs)
	return nil
}

// RemoveProof drops proof i from the staged list.
func (it *Item) RemoveProof(i int) error {
	if !it.CanEdit() {
		return ErrForbidden
	}
	it.stageProofs()
	if i < 0 || i >= len(it.proofs) {
		return fmt.Errorf("proof index %d out of range [0,%d)", i, len(it.proofs))
	}
	it.proofs = append(it.proofs[:i], it.proofs[i+1:]...)
	it.check(FieldProofs)
	return nil
}

// FieldError returns the inline validation message for f, if any.
func (it *Item) FieldError(f Field) string { return it.errs[f] }

// check refreshes the inline error of one field.
func (it *Item) check(f Field) {
	delete(it.errs, f)
	switch f {
	case FieldTitle:
		if strings.TrimSpace(it.pending[f]) == "" {
			it.errs[f] = "Title must not be empty"
		}
	case FieldURL:
		if !client.ValidURL(it.pending[f]) {
			it.errs[f] = "Invalid URL format"
		}
	case FieldProofs:
		for _, p := range it.proofs {
			if p != "" && !client.ValidURL(p) {
				it.errs[f] = "Invalid URL format: " + p
				return
			}
		}
	}
}

// Patch builds the partial update for the staged edits. Blank proof slots
// are dropped.
func (it *Item) Patch() client.ReportPatch {
	var p client.ReportPatch
	if v, ok := it.pending[FieldTitle]; ok {
		p.Title = &v
	}
	if v, ok := it.pending[FieldURL]; ok {
		p.URL = &v
	}
	if v, ok := it.pending[FieldReason]; ok {
		p.Reason = &v
	}
	if v, ok := it.pending[FieldAdditionalInfo]; ok {
		p.AdditionalInfo = &v
	}
	if it.proofs != nil {
		p.Proofs = make([]string, 0, len(it.proofs))
		for _, s := range it.proofs {
			if s = strings.TrimSpace(s); s != "" {
				p.Proofs = append(p.Proofs, s)
			}
		}
	}
	return p
}

// Submit sends every staged edit as one update. With nothing staged it does
// nothing and reports false. On success the committed record becomes the
// server's and the staging area is cleared; on failure staged edits are
// kept.
func (it *Item) Submit(ctx context.Context) (bool, error) {
	if !it.Dirty() {
		return false, nil
	}
	if !it.CanEdit() {
		return false, ErrForbidden
	}
	for _, f := range fields {
		if msg, ok := it.errs[f]; ok {
			return false, &client.ValidationError{Field: string(f), Message: msg}
		}
	}
	patch := it.Patch()
	if err := patch.Validate(); err != nil {
		var ve *client.ValidationError
		if errors.As(err, &ve) {
			it.errs[Field(ve.Field)] = ve.Message
		}
		return false, err
	}

	r, err := it.mut.Update(ctx, it.report.ID, patch)
	if err != nil {
		return false, err
	}
	it.report = r
	it.CancelAll()
	return true, nil
}

// SetStatus changes the status through the engine's optimistic path.
func (it *Item) SetStatus(ctx context.Context, status client.Status) error {
	if !it.CanEdit() {
		return ErrForbidden
	}
	err := it.mut.UpdateStatus(ctx, it.report.ID, status)
	it.refresh()
	return err
}

// Approve marks the report approved.
func (it *Item) Approve(ctx context.Context) error {
	if !it.CanEdit() {
		return ErrForbidden
	}
	r, err := it.mut.Approve(ctx, it.report.ID)
	if err != nil {
		return err
	}
	it.report = r
	return nil
}

// Delete removes the report. Admin only.
func (it *Item) Delete(ctx context.Context) error {
	if !it.CanDelete() {
		return ErrForbidden
	}
	return it.mut.Remove(ctx, it.report.ID)
}

// refresh re-reads the committed record from the engine.
func (it *Item) refresh() {
	if r, ok := it.mut.Get(it.report.ID); ok {
		it.report = r
	}
}
