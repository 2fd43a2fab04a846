// Package guard decides whether a route may be shown to the current session.
package guard

import (
	"fmt"

	"github.com/jmerrifield20/takedown/internal/session"
)

// State is the guard's view of the session.
type State int

const (
	// Loading means the session restore has not finished; nothing renders.
	Loading State = iota
	// Unauthenticated means the route needs a session and there is none.
	Unauthenticated
	// Authorized means the guarded content may render.
	Authorized
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authorized:
		return "authorized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Requirement is what a route asks of the session.
type Requirement int

const (
	Public Requirement = iota
	SignedIn
	Moderator
	Admin
)

// Route paths.
const (
	Home     = "/"
	Status   = "/status"
	Report   = "/report"
	Login    = "/login"
	Register = "/register"
	AdminURL = "/admin"
)

var routes = map[string]Requirement{
	Home:     Public,
	Status:   Public,
	Report:   Public,
	Login:    Public,
	Register: Public,
	AdminURL: Admin,
}

// RequirementOf returns what path needs. Unknown paths require a session.
func RequirementOf(path string) Requirement {
	if r, ok := routes[path]; ok {
		return r
	}
	return SignedIn
}

// Source exposes the session state the guard reads. *session.Store
// satisfies it.
type Source interface {
	Restored() bool
	Current() *session.Session
}

// Decision is the outcome for one route. Redirect is empty when the content
// may render.
type Decision struct {
	State    State
	Redirect string
}

// Allowed reports whether the guarded content renders.
func (d Decision) Allowed() bool { return d.State == Authorized && d.Redirect == "" }

// Check evaluates req against the session.
func Check(src Source, req Requirement) Decision {
	if !src.Restored() {
		return Decision{State: Loading}
	}
	if req == Public {
		return Decision{State: Authorized}
	}
	sess := src.Current()
	if sess == nil {
		return Decision{State: Unauthenticated, Redirect: Login}
	}
	switch {
	case req == Admin && !sess.IsAdmin(),
		req == Moderator && !sess.IsModerator():
		return Decision{State: Authorized, Redirect: Home}
	}
	return Decision{State: Authorized}
}

// CheckPath evaluates the requirement registered for path.
func CheckPath(src Source, path string) Decision {
	return Check(src, RequirementOf(path))
}

// RedirectError tells a caller the route was refused and where to go.
type RedirectError struct {
	To     string
	Reason string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s (go to %s)", e.Reason, e.To)
}

// Require turns a refusing Decision into an error.
func Require(src Source, req Requirement) error {
	d := Check(src, req)
	switch {
	case d.State == Loading:
		return &RedirectError{To: Home, Reason: "session is still loading"}
	case d.State == Unauthenticated:
		return &RedirectError{To: d.Redirect, Reason: "you must log in first"}
	case d.Redirect != "":
		return &RedirectError{To: d.Redirect, Reason: "your account does not have the required role"}
	}
	return nil
}
