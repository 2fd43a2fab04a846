// Package reportlist keeps one kind's report collection in memory and
// derives the filtered, sorted and paginated slice a moderator sees.
package reportlist

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmerrifield20/takedown/pkg/client"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultPageSize is the number of reports per page unless configured.
const DefaultPageSize = 15

// Viewer is whoever is looking at the list. A nil Viewer is anonymous.
type Viewer interface {
	Username() string
	IsModerator() bool
	IsAdmin() bool
}

// SortKey selects the field reports are ordered by.
type SortKey string

const (
	SortID           SortKey = "id"
	SortTitle        SortKey = "title"
	SortDateReported SortKey = "dateReported"
)

// ParseSortKey accepts the three sort keys, plus "date" as a shorthand.
func ParseSortKey(s string) (SortKey, error) {
	switch s {
	case "", "id":
		return SortID, nil
	case "title":
		return SortTitle, nil
	case "date", "dateReported":
		return SortDateReported, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Params are the user-selected view inputs. An empty Status means all.
type Params struct {
	Status   client.Status
	Search   string
	SortKey  SortKey
	Desc     bool
	Page     int
	PageSize int
}

// View is one rendered page.
type View struct {
	Reports    []client.Report `json:"reports"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
	Total      int             `json:"total"`
}

// Visible reports whether v may see r. Approved reports are public; an
// unapproved one is shown only to its reporter and to moderators.
func Visible(r client.Report, v Viewer) bool {
	if r.Approved {
		return true
	}
	if isNil(v) {
		return false
	}
	if v.IsModerator() {
		return true
	}
	return r.Reporter != "" && r.Reporter == v.Username()
}

// isNil catches both a nil interface and a typed nil pointer whose methods
// would otherwise report an anonymous identity.
func isNil(v Viewer) bool {
	return v == nil || v.Username() == ""
}

// Derive computes the page of records p selects for viewer v. It does not
// modify records. A page outside [1, TotalPages] is clamped back to 1.
func Derive(records []client.Report, p Params, v Viewer) View {
	size := p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	needle := strings.ToLower(p.Search)

	matched := make([]client.Report, 0, len(records))
	for _, r := range records {
		if !Visible(r, v) {
			continue
		}
		if p.Status != "" && r.Status != p.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.URL), needle) {
			continue
		}
		matched = append(matched, r)
	}

	cmp := comparator(p.SortKey)
	if p.Desc {
		asc := cmp
		cmp = func(a, b client.Report) int { return -asc(a, b) }
	}
	slices.SortStableFunc(matched, cmp)

	total := len(matched)
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	page := p.Page
	if page < 1 || page > pages {
		page = 1
	}

	start := (page - 1) * size
	end := min(start+size, total)
	out := make([]client.Report, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, r.Clone())
	}
	return View{Reports: out, Page: page, TotalPages: pages, Total: total}
}

func comparator(key SortKey) func(a, b client.Report) int {
	switch key {
	case SortTitle:
		// Collators keep scratch buffers, so each derivation gets its own.
		col := collate.New(language.English)
		return func(a, b client.Report) int { return col.CompareString(a.Title, b.Title) }
	case SortDateReported:
		return func(a, b client.Report) int {
			x, y := a.ReportedUnix(), b.ReportedUnix()
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	default:
		return func(a, b client.Report) int { return a.ID.Compare(b.ID) }
	}
}
