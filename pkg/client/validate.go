package client

import (
	"net/url"
	"regexp"
	"strings"
)

// scribbleHubProfile matches the profile URLs accepted at registration.
var scribbleHubProfile = regexp.MustCompile(`^https://www\.scribblehub\.com/profile/\d+/[a-zA-Z0-9\-_]+/?$`)

// ValidURL reports whether s is an absolute URL with a scheme and host.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// Validate checks a patch before it is sent.
func (p ReportPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if p.URL != nil && !ValidURL(*p.URL) {
		return &ValidationError{Field: "url", Message: "Invalid URL format"}
	}
	if p.Proofs != nil {
		if err := validateProofs(p.Proofs); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a creation payload before it is sent.
func (n NewReport) Validate() error {
	if strings.TrimSpace(n.URL) == "" {
		return &ValidationError{Field: "url", Message: "is required"}
	}
	if !ValidURL(n.URL) {
		return &ValidationError{Field: "url", Message: "Invalid URL format"}
	}
	if strings.TrimSpace(n.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "is required"}
	}
	return validateProofs(n.Proofs)
}

func validateProofs(proofs []string) error {
	if len(proofs) == 0 {
		return &ValidationError{Field: "proofs", Message: "at least one proof is required"}
	}
	for _, p := range proofs {
		if !ValidURL(p) {
			return &ValidationError{Field: "proofs", Message: "Invalid URL format: " + p}
		}
	}
	return nil
}

// Validate checks a registration before it is sent.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return &ValidationError{Field: "username", Message: "is required"}
	}
	if r.Password == "" {
		return &ValidationError{Field: "password", Message: "is required"}
	}
	if !scribbleHubProfile.MatchString(r.SHProfileURL) {
		return &ValidationError{Field: "shProfileURL", Message: "Please enter a valid Scribble Hub profile URL."}
	}
	return nil
}

// Validate checks a webhook registration before it is sent.
func (w NewWebhook) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !ValidURL(w.URL) {
		return &ValidationError{Field: "url", Message: "Invalid URL format"}
	}
	return nil
}
