package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/takedown/internal/apitest"
	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/internal/session"
	"github.com/jmerrifield20/takedown/pkg/client"
)

// run executes the root command against srv with an isolated home directory.
func run(t *testing.T, srv *apitest.Server, args ...string) error {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TAKEDOWN_API_URL", srv.URL)
	t.Setenv("TAKEDOWN_LOG_LEVEL", "error")
	cfgFile, apiURL, showMetrics = "", "", false
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestListReportsAnonymously(t *testing.T) {
	srv := apitest.New(t)
	srv.AddReport(client.KindWork, client.Report{Title: "Dragon Road", URL: "https://a.example/1", Approved: true})

	if err := run(t, srv, "reports", "list", "--format", "json"); err != nil {
		t.Fatalf("reports list: %v", err)
	}
	if n := srv.Calls("GET", "/works"); n != 1 {
		t.Errorf("GET /works calls = %d, want 1", n)
	}
	if app.cfg.APIURL != srv.URL {
		t.Errorf("api_url = %q, want env override", app.cfg.APIURL)
	}
}

func TestModeratorCommandsRequireLogin(t *testing.T) {
	srv := apitest.New(t)
	srv.AddReport(client.KindWork, client.Report{Title: "Dragon Road", URL: "https://a.example/1", Approved: true})

	err := run(t, srv, "reports", "approve", "1")
	var re *guard.RedirectError
	if !errors.As(err, &re) || re.To != guard.Login {
		t.Fatalf("err = %v, want redirect to login", err)
	}
	if n := srv.TotalCalls(); n != 0 {
		t.Errorf("backend calls = %d, want none", n)
	}
}

// signIn logs u in through a separate store so the CLI finds a session file.
func signIn(t *testing.T, srv *apitest.Server, u client.User, password string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	t.Setenv("TAKEDOWN_SESSION_FILE", path)
	store := session.NewStore(client.MustNew(srv.URL), path, nil)
	if _, err := store.Login(t.Context(), client.Credentials{Username: u.Username, Password: password}); err != nil {
		t.Fatalf("login: %v", err)
	}
	return path
}

func TestAdminCommandsRefuseModerators(t *testing.T) {
	srv := apitest.New(t)
	signIn(t, srv, srv.AddUser("mod", "pw", client.RoleUser, true), "pw")

	err := run(t, srv, "users", "list")
	var re *guard.RedirectError
	if !errors.As(err, &re) || re.To != guard.Home {
		t.Fatalf("err = %v, want redirect home", err)
	}
	if n := srv.Calls("GET", "/users"); n != 0 {
		t.Errorf("GET /users calls = %d", n)
	}
}

func TestApproveAsModerator(t *testing.T) {
	srv := apitest.New(t)
	srv.AddReport(client.KindWork, client.Report{Title: "Hidden", URL: "https://a.example/1"})
	signIn(t, srv, srv.AddUser("mod", "pw", client.RoleUser, true), "pw")

	if err := run(t, srv, "reports", "approve", "1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if r, _ := srv.Report(client.KindWork, "1"); !r.Approved {
		t.Error("report not approved")
	}
}

func TestAdminListsUsers(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("pending", "pw", client.RoleUser, false)
	signIn(t, srv, srv.AddUser("root", "pw", client.RoleAdmin, true), "pw")

	if err := run(t, srv, "users", "approve", "pending"); err != nil {
		t.Fatalf("users approve: %v", err)
	}
	if u, _ := srv.User("pending"); !u.Approved {
		t.Error("account not approved")
	}
}

func TestExpiredSessionIsDropped(t *testing.T) {
	srv := apitest.New(t)
	u := srv.AddUser("mod", "pw", client.RoleUser, true)

	path := signIn(t, srv, u, "pw")

	// Replace the stored token with one already past its expiry.
	b, err := json.Marshal(session.Session{User: u, Token: srv.IssueToken(u, -time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := run(t, srv, "whoami"); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if app.store.Current() != nil {
		t.Error("expired session restored")
	}
}

func TestCreateDefaultsTitleToURL(t *testing.T) {
	srv := apitest.New(t)
	signIn(t, srv, srv.AddUser("mod", "pw", client.RoleUser, true), "pw")

	const url = "https://www.scribblehub.com/series/9/stolen/"
	err := run(t, srv, "reports", "create",
		"--url", url, "--reason", "copied chapters", "--proof", "https://www.royalroad.com/fiction/2")
	if err != nil {
		t.Fatalf("reports create: %v", err)
	}
	r, ok := srv.Report(client.KindWork, "1")
	if !ok {
		t.Fatal("report not stored")
	}
	if r.Title != url {
		t.Errorf("title = %q, want %q", r.Title, url)
	}
}

func TestFailedCommandStillPrintsExpiredNotice(t *testing.T) {
	srv := apitest.New(t)
	srv.AddReport(client.KindWork, client.Report{Title: "Hidden", URL: "https://a.example/1"})
	signIn(t, srv, srv.AddUser("mod", "pw", client.RoleUser, true), "pw")
	srv.Fail(http.MethodPut, "/works/:id/approve", http.StatusUnauthorized, "invalid or expired token")

	if err := run(t, srv, "reports", "approve", "1"); err == nil {
		t.Fatal("approve succeeded, want rejected token")
	}

	var out bytes.Buffer
	finish(&out)
	if !strings.Contains(out.String(), session.ExpiredNotice) {
		t.Errorf("output = %q, want expired notice", out.String())
	}
	if app.store.Current() != nil {
		t.Error("session kept after rejected token")
	}

	out.Reset()
	finish(&out)
	if out.Len() != 0 {
		t.Errorf("notice printed twice: %q", out.String())
	}
}
