package reportitem

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/takedown/internal/reportlist"
	"github.com/jmerrifield20/takedown/internal/session"
	"github.com/jmerrifield20/takedown/pkg/client"
)

// stubMutator counts calls and echoes patches back as the server record.
type stubMutator struct {
	report  client.Report
	updates []client.ReportPatch
	status  []client.Status
	removed int
	fail    error
}

func (m *stubMutator) Get(client.ID) (client.Report, bool) { return m.report, true }

func (m *stubMutator) Update(_ context.Context, _ client.ID, p client.ReportPatch) (client.Report, error) {
	m.updates = append(m.updates, p)
	if m.fail != nil {
		return client.Report{}, m.fail
	}
	if p.Title != nil {
		m.report.Title = *p.Title
	}
	if p.URL != nil {
		m.report.URL = *p.URL
	}
	if p.Proofs != nil {
		m.report.Proofs = p.Proofs
	}
	m.report.UpdatedBy = "server"
	return m.report, nil
}

func (m *stubMutator) UpdateStatus(_ context.Context, _ client.ID, s client.Status) error {
	m.status = append(m.status, s)
	if m.fail != nil {
		return m.fail
	}
	m.report.Status = s
	m.report.Approved = true
	return nil
}

func (m *stubMutator) Approve(context.Context, client.ID) (client.Report, error) {
	m.report.Approved = true
	return m.report, m.fail
}

func (m *stubMutator) Remove(context.Context, client.ID) error {
	m.removed++
	return m.fail
}

var (
	anon  *session.Session
	mod   = &session.Session{User: client.User{Username: "mod", Role: client.RoleUser}}
	admin = &session.Session{User: client.User{Username: "root", Role: client.RoleAdmin}}
	owner = &session.Session{User: client.User{Username: "owner", Role: "reporter"}}
)

func sample() client.Report {
	return client.Report{
		ID:       "7",
		Kind:     client.KindWork,
		Title:    "Stolen Story",
		URL:      "https://www.scribblehub.com/series/7/",
		Status:   client.StatusPendingReview,
		Approved: true,
		Proofs:   []string{"https://a.example", "https://b.example"},
		Reason:   "copied",
		Reporter: "owner",
	}
}

func newItem(v reportlist.Viewer) (*Item, *stubMutator) {
	m := &stubMutator{report: sample()}
	return New(sample(), v, m), m
}

func TestPermissions(t *testing.T) {
	tests := []struct {
		name      string
		v         reportlist.Viewer
		canEdit   bool
		canDelete bool
	}{
		{"anonymous", anon, false, false},
		{"reporter", owner, false, false},
		{"moderator", mod, true, false},
		{"admin", admin, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, _ := newItem(tt.v)
			if it.CanEdit() != tt.canEdit || it.CanDelete() != tt.canDelete {
				t.Errorf("CanEdit=%v CanDelete=%v, want %v %v", it.CanEdit(), it.CanDelete(), tt.canEdit, tt.canDelete)
			}
		})
	}
}

func TestVisibility(t *testing.T) {
	r := sample()
	r.Approved = false
	m := &stubMutator{report: r}

	if New(r, anon, m).Visible() {
		t.Error("anonymous viewer sees unapproved report")
	}
	if !New(r, owner, m).Visible() {
		t.Error("reporter cannot see own report")
	}
	if !New(r, mod, m).Visible() {
		t.Error("moderator cannot see unapproved report")
	}
}

func TestToggle(t *testing.T) {
	it, _ := newItem(anon)
	if it.Expanded() {
		t.Fatal("starts expanded")
	}
	it.Toggle()
	if !it.Expanded() {
		t.Error("Toggle did not expand")
	}
}

func TestSubmit_nothingStagedIsNoop(t *testing.T) {
	it, m := newItem(mod)
	sent, err := it.Submit(context.Background())
	if err != nil || sent {
		t.Fatalf("Submit = %v, %v; want false, nil", sent, err)
	}
	if len(m.updates) != 0 {
		t.Errorf("update called %d times", len(m.updates))
	}
}

func TestSubmit_combinesStagedFields(t *testing.T) {
	it, m := newItem(mod)
	if err := it.Set(FieldTitle, "Renamed"); err != nil {
		t.Fatal(err)
	}
	if err := it.Set(FieldReason, "more detail"); err != nil {
		t.Fatal(err)
	}
	if it.Value(FieldTitle) != "Renamed" || it.Report().Title != "Stolen Story" {
		t.Error("staged value leaked into committed record")
	}

	sent, err := it.Submit(context.Background())
	if err != nil || !sent {
		t.Fatalf("Submit = %v, %v", sent, err)
	}
	if len(m.updates) != 1 {
		t.Fatalf("update called %d times, want 1", len(m.updates))
	}
	p := m.updates[0]
	if p.Title == nil || *p.Title != "Renamed" || p.Reason == nil || p.URL != nil || p.Proofs != nil {
		t.Errorf("patch = %+v", p)
	}
	if it.Dirty() {
		t.Error("staging area not cleared after submit")
	}
	if it.Report().UpdatedBy != "server" {
		t.Error("server record not adopted")
	}
}

func TestCancel_discardsOneField(t *testing.T) {
	it, _ := newItem(mod)
	it.Set(FieldTitle, "x")
	it.Set(FieldURL, "https://new.example")
	it.Cancel(FieldTitle)

	if it.Pending(FieldTitle) || !it.Pending(FieldURL) {
		t.Error("Cancel touched the wrong field")
	}
	if it.Value(FieldTitle) != "Stolen Story" {
		t.Errorf("title = %q after cancel", it.Value(FieldTitle))
	}
}

func TestProofs_addSeedsFromCommitted(t *testing.T) {
	it, m := newItem(mod)
	i, err := it.AddProof()
	if err != nil {
		t.Fatal(err)
	}
	if i != 2 || len(it.Proofs()) != 3 || it.Proofs()[0] != "https://a.example" {
		t.Fatalf("proofs after add = %v (index %d)", it.Proofs(), i)
	}
	if err := it.SetProof(i, "https://c.example"); err != nil {
		t.Fatal(err)
	}
	if len(sample().Proofs) != 2 || len(it.Report().Proofs) != 2 {
		t.Error("committed proofs changed before submit")
	}

	if _, err := it.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.updates[0].Proofs; len(got) != 3 || got[2] != "https://c.example" {
		t.Errorf("sent proofs = %v", got)
	}
}

func TestProofs_removeSeedsFromCommitted(t *testing.T) {
	it, _ := newItem(mod)
	if err := it.RemoveProof(0); err != nil {
		t.Fatal(err)
	}
	if got := it.Proofs(); len(got) != 1 || got[0] != "https://b.example" {
		t.Errorf("proofs = %v", got)
	}
	if err := it.RemoveProof(5); err == nil {
		t.Error("expected out of range error")
	}
}

func TestProofs_blankSlotDropped(t *testing.T) {
	it, m := newItem(mod)
	it.AddProof()
	if _, err := it.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.updates[0].Proofs; len(got) != 2 {
		t.Errorf("sent proofs = %v, want blank slot dropped", got)
	}
}

func TestProofs_removingAllIsRejected(t *testing.T) {
	it, m := newItem(mod)
	it.RemoveProof(0)
	it.RemoveProof(0)

	_, err := it.Submit(context.Background())
	if !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if it.FieldError(FieldProofs) == "" {
		t.Error("no inline error for proofs")
	}
	if len(m.updates) != 0 {
		t.Error("invalid patch reached the engine")
	}
}

func TestFieldError_invalidURL(t *testing.T) {
	it, m := newItem(mod)
	it.Set(FieldURL, "not a url")
	if it.FieldError(FieldURL) != "Invalid URL format" {
		t.Errorf("FieldError = %q", it.FieldError(FieldURL))
	}
	if _, err := it.Submit(context.Background()); !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(m.updates) != 0 {
		t.Error("invalid url reached the engine")
	}

	it.Set(FieldURL, "https://ok.example")
	if it.FieldError(FieldURL) != "" {
		t.Error("error not cleared after fixing the value")
	}
}

func TestSubmit_failureKeepsStagedEdits(t *testing.T) {
	it, m := newItem(mod)
	m.fail = client.ErrRequestFailed
	it.Set(FieldTitle, "Renamed")

	if _, err := it.Submit(context.Background()); !errors.Is(err, client.ErrRequestFailed) {
		t.Fatalf("err = %v", err)
	}
	if !it.Pending(FieldTitle) || it.Report().Title != "Stolen Story" {
		t.Error("failed submit lost staged edit or changed committed record")
	}
}

func TestIntents_forbidden(t *testing.T) {
	it, m := newItem(owner)
	ctx := context.Background()

	if err := it.Set(FieldTitle, "x"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Set err = %v", err)
	}
	if _, err := it.AddProof(); !errors.Is(err, ErrForbidden) {
		t.Errorf("AddProof err = %v", err)
	}
	if err := it.SetStatus(ctx, client.StatusConfirmed); !errors.Is(err, ErrForbidden) {
		t.Errorf("SetStatus err = %v", err)
	}
	if err := it.Approve(ctx); !errors.Is(err, ErrForbidden) {
		t.Errorf("Approve err = %v", err)
	}

	modItem, _ := newItem(mod)
	if err := modItem.Delete(ctx); !errors.Is(err, ErrForbidden) {
		t.Errorf("moderator Delete err = %v", err)
	}
	if len(m.status) != 0 || m.removed != 0 {
		t.Error("forbidden intent reached the engine")
	}
}

func TestIntents_allowed(t *testing.T) {
	it, m := newItem(admin)
	ctx := context.Background()

	if err := it.SetStatus(ctx, client.StatusTakenDown); err != nil {
		t.Fatal(err)
	}
	if it.Report().Status != client.StatusTakenDown {
		t.Error("status not refreshed from engine")
	}
	if err := it.Approve(ctx); err != nil {
		t.Fatal(err)
	}
	if err := it.Delete(ctx); err != nil || m.removed != 1 {
		t.Errorf("Delete err = %v, removed = %d", err, m.removed)
	}
}

func TestParseField(t *testing.T) {
	if f, err := ParseField("info"); err != nil || f != FieldAdditionalInfo {
		t.Errorf("ParseField(info) = %q, %v", f, err)
	}
	if _, err := ParseField("status"); err == nil {
		t.Error("status is not an editable field")
	}
}
