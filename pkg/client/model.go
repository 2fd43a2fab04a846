package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind distinguishes the two report variants served by the API.
type Kind string

const (
	KindWork    Kind = "work"
	KindProfile Kind = "profile"
)

// Status is the review status of a report. The set of valid values depends
// on the report Kind.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusInProgress    Status = "in_progress"

	// Work statuses.
	StatusConfirmed Status = "confirmed"
	StatusTakenDown Status = "taken_down"
	StatusOriginal  Status = "original"

	// Profile statuses.
	StatusConfirmedViolator Status = "confirmed_violator"
	StatusFalsePositive     Status = "false_positive"
)

var kindStatuses = map[Kind][]Status{
	KindWork:    {StatusPendingReview, StatusInProgress, StatusConfirmed, StatusTakenDown, StatusOriginal},
	KindProfile: {StatusPendingReview, StatusInProgress, StatusConfirmedViolator, StatusFalsePositive},
}

// ParseKind accepts "work", "profile" and their plural resource names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "work", "works":
		return KindWork, nil
	case "profile", "profiles":
		return KindProfile, nil
	}
	return "", fmt.Errorf("unknown report kind %q", s)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindStatuses[k]
	return ok
}

// Resource returns the collection path segment for the kind, e.g. "works".
func (k Kind) Resource() string { return string(k) + "s" }

// Statuses returns the closed status vocabulary for the kind.
func (k Kind) Statuses() []Status {
	return append([]Status(nil), kindStatuses[k]...)
}

// Allows reports whether s belongs to the kind's status vocabulary.
func (k Kind) Allows(s Status) bool {
	for _, v := range kindStatuses[k] {
		if v == s {
			return true
		}
	}
	return false
}

// ID is a backend-assigned record identifier. The API emits ids either as
// JSON numbers or strings; both decode into ID.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits integer ids as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// Int returns the id as an integer when it is one.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// Compare orders ids numerically when both are integers and lexically
// otherwise. Integer ids sort before non-integer ones.
func (id ID) Compare(other ID) int {
	a, aok := id.Int()
	b, bok := other.Int()
	switch {
	case aok && bok:
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	switch {
	case id < other:
		return -1
	case id > other:
		return 1
	}
	return 0
}

func (id ID) String() string { return string(id) }

// AnonymousReporter is shown when a report carries no reporter nickname.
const AnonymousReporter = "Anonymous"

// Report is a flagged work or profile.
type Report struct {
	ID             ID         `json:"id"`
	Kind           Kind       `json:"kind,omitempty"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Status         Status     `json:"status"`
	Approved       bool       `json:"approved"`
	Proofs         []string   `json:"proofs"`
	Reason         string     `json:"reason,omitempty"`
	AdditionalInfo string     `json:"additionalInfo"`
	Reporter       string     `json:"reporter,omitempty"`
	DateReported   *time.Time `json:"dateReported,omitempty"`
	LastUpdated    *time.Time `json:"lastUpdated,omitempty"`
	UpdatedBy      string     `json:"updatedBy,omitempty"`
}

// ReporterName returns the reporter nickname or AnonymousReporter.
func (r Report) ReporterName() string {
	if r.Reporter == "" {
		return AnonymousReporter
	}
	return r.Reporter
}

// ReportedUnix is the report timestamp in seconds; a missing date is 0.
func (r Report) ReportedUnix() int64 {
	if r.DateReported == nil {
		return 0
	}
	return r.DateReported.Unix()
}

// Clone returns a deep copy of r.
func (r Report) Clone() Report {
	cp := r
	if r.Proofs != nil {
		cp.Proofs = append([]string(nil), r.Proofs...)
	}
	return cp
}

// ReportPatch is a partial update. Nil fields are left untouched by the
// backend. A non-nil Proofs replaces the whole proof list.
type ReportPatch struct {
	Title          *string  `json:"title,omitempty"`
	URL            *string  `json:"url,omitempty"`
	Reason         *string  `json:"reason,omitempty"`
	AdditionalInfo *string  `json:"additionalInfo,omitempty"`
	Proofs         []string `json:"proofs,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ReportPatch) Empty() bool {
	return p.Title == nil && p.URL == nil && p.Reason == nil && p.AdditionalInfo == nil && p.Proofs == nil
}

// NewReport is the payload for creating a report.
type NewReport struct {
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url"`
	Reason   string   `json:"reason"`
	Proofs   []string `json:"proofs"`
	Reporter string   `json:"reporter,omitempty"`
}

// Role is an account's privilege level. Every role can moderate; only
// RoleAdmin can delete reports, manage users and manage webhooks.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// User is an account as returned by the API. It never carries secrets.
type User struct {
	ID           ID     `json:"id"`
	Username     string `json:"username"`
	SHProfileURL string `json:"shProfileURL,omitempty"`
	Role         Role   `json:"role"`
	Approved     bool   `json:"approved"`
}

// UserPatch is a partial account update.
type UserPatch struct {
	Approved *bool `json:"approved,omitempty"`
	Role     *Role `json:"role,omitempty"`
}

// Webhook is an admin-managed notification target.
type Webhook struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	Created   *time.Time `json:"created,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
}

// NewWebhook is the payload for registering a webhook.
type NewWebhook struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Credentials authenticate an existing account.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration creates a new, unapproved account.
type Registration struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	SHProfileURL string `json:"shProfileURL"`
}

// AuthResult is the identity and bearer token returned by Login.
type AuthResult struct {
	User  User
	Token string
}
