package reportlist

import (
	"strconv"
	"testing"
	"time"

	"github.com/jmerrifield20/takedown/pkg/client"
)

type viewer struct {
	name  string
	mod   bool
	admin bool
}

func (v *viewer) Username() string  { return v.name }
func (v *viewer) IsModerator() bool { return v.mod || v.admin }
func (v *viewer) IsAdmin() bool     { return v.admin }

var (
	reporter  = &viewer{name: "reporter"}
	moderator = &viewer{name: "mod", mod: true}
)

func work(id int, title string, approved bool) client.Report {
	return client.Report{
		ID:       client.ID(strconv.Itoa(id)),
		Kind:     client.KindWork,
		Title:    title,
		URL:      "https://example.org/" + strconv.Itoa(id),
		Status:   client.StatusPendingReview,
		Approved: approved,
		Proofs:   []string{"https://proof.example/" + strconv.Itoa(id)},
	}
}

func ids(rs []client.Report) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID.String()
	}
	return out
}

func TestVisible(t *testing.T) {
	hidden := work(1, "hidden", false)
	hidden.Reporter = "reporter"
	public := work(2, "public", true)

	tests := []struct {
		name string
		v    Viewer
		r    client.Report
		want bool
	}{
		{"nil viewer sees approved", nil, public, true},
		{"nil viewer misses unapproved", nil, hidden, false},
		{"stranger misses unapproved", &viewer{name: "someone"}, hidden, false},
		{"reporter sees own", reporter, hidden, true},
		{"moderator sees all", moderator, hidden, true},
		{"admin sees all", &viewer{name: "root", admin: true}, hidden, true},
		{"empty reporter never matches", &viewer{name: ""}, work(3, "x", false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(tt.r, tt.v); got != tt.want {
				t.Errorf("Visible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDerive_unapprovedHiddenFromStrangers(t *testing.T) {
	records := []client.Report{work(1, "a", true), work(2, "b", false), work(3, "c", false)}
	records[2].Reporter = "reporter"

	cases := map[string]struct {
		v    Viewer
		want int
	}{
		"anonymous": {nil, 1},
		"reporter":  {reporter, 2},
		"moderator": {moderator, 3},
	}
	for name, tc := range cases {
		if got := Derive(records, Params{}, tc.v).Total; got != tc.want {
			t.Errorf("%s: total = %d, want %d", name, got, tc.want)
		}
	}
}

func TestDerive_confirmedScenario(t *testing.T) {
	var records []client.Report
	for i := 1; i <= 20; i++ {
		r := work(i, "w"+strconv.Itoa(i), i%2 == 0)
		if r.Approved {
			r.Status = client.StatusConfirmed
		}
		records = append(records, r)
	}

	view := Derive(records, Params{Status: client.StatusConfirmed, Page: 1, PageSize: 15}, nil)
	if len(view.Reports) != 10 {
		t.Fatalf("got %d reports, want 10", len(view.Reports))
	}
	if view.TotalPages != 1 || view.Total != 10 {
		t.Errorf("TotalPages = %d, Total = %d, want 1, 10", view.TotalPages, view.Total)
	}
	for _, r := range view.Reports {
		if r.Status != client.StatusConfirmed {
			t.Errorf("report %s has status %s", r.ID, r.Status)
		}
	}
}

func TestDerive_pageClamp(t *testing.T) {
	var records []client.Report
	for i := 1; i <= 31; i++ {
		records = append(records, work(i, "t", true))
	}

	tests := []struct {
		page      int
		wantPage  int
		wantCount int
	}{
		{1, 1, 15},
		{2, 2, 15},
		{3, 3, 1},
		{4, 1, 15},
		{0, 1, 15},
		{-7, 1, 15},
	}
	for _, tt := range tests {
		view := Derive(records, Params{Page: tt.page, PageSize: 15}, nil)
		if view.Page != tt.wantPage || len(view.Reports) != tt.wantCount {
			t.Errorf("page %d: got page %d with %d reports, want %d with %d",
				tt.page, view.Page, len(view.Reports), tt.wantPage, tt.wantCount)
		}
		if view.TotalPages != 3 {
			t.Errorf("TotalPages = %d, want 3", view.TotalPages)
		}
	}

	empty := Derive(nil, Params{Page: 5}, nil)
	if empty.Page != 1 || empty.TotalPages != 1 || len(empty.Reports) != 0 {
		t.Errorf("empty view = %+v", empty)
	}
}

func TestDerive_titleSortReverses(t *testing.T) {
	records := []client.Report{
		work(1, "Zeta", true),
		work(2, "alpha", true),
		work(3, "Éclair", true),
		work(4, "beta", true),
		work(5, "Alpha", true),
	}

	asc := ids(Derive(records, Params{SortKey: SortTitle}, nil).Reports)
	desc := ids(Derive(records, Params{SortKey: SortTitle, Desc: true}, nil).Reports)
	if len(asc) != len(desc) {
		t.Fatalf("length mismatch %v vs %v", asc, desc)
	}
	for i := range asc {
		if asc[i] != desc[len(desc)-1-i] {
			t.Fatalf("desc %v is not the reverse of asc %v", desc, asc)
		}
	}
	// Collation places the accented title between b and z, not after Zeta.
	if asc[len(asc)-1] != "1" {
		t.Errorf("asc order = %v, want Zeta last", asc)
	}
}

func TestDerive_idSortNumeric(t *testing.T) {
	records := []client.Report{work(10, "a", true), work(9, "b", true), work(100, "c", true)}
	got := ids(Derive(records, Params{SortKey: SortID}, nil).Reports)
	want := []string{"9", "10", "100"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDerive_dateSortMissingIsEpoch(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	a, b, c := work(1, "a", true), work(2, "b", true), work(3, "c", true)
	a.DateReported = &t2
	b.DateReported = &t1

	got := ids(Derive([]client.Report{a, b, c}, Params{SortKey: SortDateReported}, nil).Reports)
	want := []string{"3", "2", "1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDerive_search(t *testing.T) {
	hit := work(1, "Some title", true)
	hit.URL = "https://www.scribblehub.com/series/1"
	miss := work(2, "Other", true)
	miss.URL = "https://royalroad.com/fiction/2"
	noURL := work(3, "SCRIBBLE in title", true)
	noURL.URL = ""

	view := Derive([]client.Report{hit, miss, noURL}, Params{Search: "scribble"}, nil)
	got := ids(view.Reports)
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("search matched %v, want [1 3]", got)
	}
}

func TestDerive_doesNotAliasInput(t *testing.T) {
	records := []client.Report{work(1, "a", true)}
	view := Derive(records, Params{}, nil)
	view.Reports[0].Proofs[0] = "mutated"
	if records[0].Proofs[0] == "mutated" {
		t.Error("Derive returned records sharing proof slices with input")
	}
}

func TestParseSortKey(t *testing.T) {
	for in, want := range map[string]SortKey{"": SortID, "id": SortID, "title": SortTitle, "date": SortDateReported, "dateReported": SortDateReported} {
		got, err := ParseSortKey(in)
		if err != nil || got != want {
			t.Errorf("ParseSortKey(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSortKey("status"); err == nil {
		t.Error("expected error for unknown key")
	}
}
