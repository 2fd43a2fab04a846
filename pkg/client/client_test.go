package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/takedown/internal/apitest"
	"github.com/jmerrifield20/takedown/pkg/client"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func loggedIn(t *testing.T, srv *apitest.Server, role client.Role, opts ...client.Option) *client.Client {
	t.Helper()
	u := srv.AddUser("mod", "hunter2", role, true)
	opts = append(opts, client.WithBearerToken(srv.IssueToken(u, time.Hour)))
	return client.MustNew(srv.URL, opts...)
}

func strPtr(s string) *string { return &s }

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+" "+route+" "+http.StatusText(status))
}

// ── construction ─────────────────────────────────────────────────────────────

func TestNew_requiresBaseURL(t *testing.T) {
	if _, err := client.New("  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestNew_rejectsBadOptions(t *testing.T) {
	if _, err := client.New("http://x", client.WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := client.New("http://x", client.WithRetries(-1)); err == nil {
		t.Error("expected error for negative retries")
	}
}

// ── reports ──────────────────────────────────────────────────────────────────

func TestListReports_array(t *testing.T) {
	srv := apitest.New(t)
	srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example", Approved: true})
	srv.AddReport(client.KindWork, client.Report{Title: "B", URL: "https://b.example"})

	c := client.MustNew(srv.URL)
	reports, err := c.ListReports(context.Background(), client.KindWork)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	for _, r := range reports {
		if r.Kind != client.KindWork {
			t.Errorf("report %s kind = %q, want work", r.ID, r.Kind)
		}
	}
}

func TestListReports_mapKeyedByID(t *testing.T) {
	srv := apitest.New(t, apitest.WithListsAsMap())
	for i := 0; i < 11; i++ {
		srv.AddReport(client.KindProfile, client.Report{Title: "p", URL: "https://p.example"})
	}

	c := client.MustNew(srv.URL)
	reports, err := c.ListReports(context.Background(), client.KindProfile)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 11 {
		t.Fatalf("got %d reports, want 11", len(reports))
	}
	// Keys are ordered numerically, so "10" follows "9".
	if reports[9].ID != "10" || reports[10].ID != "11" {
		t.Errorf("ids out of order: %s, %s", reports[9].ID, reports[10].ID)
	}
}

func TestListReports_mapWithoutEmbeddedID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"abc": map[string]any{"title": "no id", "url": "https://x.example", "status": "in_progress"},
		})
	}))
	defer ts.Close()

	reports, err := client.MustNew(ts.URL).ListReports(context.Background(), client.KindWork)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "abc" {
		t.Fatalf("got %+v, want one report with id abc", reports)
	}
}

func TestListReports_unknownKind(t *testing.T) {
	_, err := client.MustNew("http://unused").ListReports(context.Background(), client.Kind("chapter"))
	if !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCreateReport_success(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleUser)

	r, err := c.CreateReport(context.Background(), client.KindWork, client.NewReport{
		URL:    "https://www.scribblehub.com/series/1/stolen/",
		Reason: "copied chapters",
		Proofs: []string{"https://www.royalroad.com/fiction/2"},
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if r.Status != client.StatusPendingReview || r.Approved {
		t.Errorf("new report = %+v, want pending and unapproved", r)
	}
	if r.Reporter != "mod" {
		t.Errorf("reporter = %q, want mod", r.Reporter)
	}
}

func TestCreateReport_validationSendsNothing(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleUser)

	_, err := c.CreateReport(context.Background(), client.KindWork, client.NewReport{
		URL:    "https://x.example",
		Reason: "r",
	})
	if !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if n := srv.TotalCalls(); n != 0 {
		t.Errorf("server saw %d calls, want 0", n)
	}
}

func TestUpdateReport_returnsServerRecord(t *testing.T) {
	srv := apitest.New(t)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "Old", URL: "https://a.example"})
	c := loggedIn(t, srv, client.RoleUser)

	r, err := c.UpdateReport(context.Background(), client.KindWork, seeded.ID, client.ReportPatch{Title: strPtr("New")})
	if err != nil {
		t.Fatalf("UpdateReport: %v", err)
	}
	if r.Title != "New" || r.URL != "https://a.example" {
		t.Errorf("got %+v", r)
	}
	if r.UpdatedBy != "mod" || r.LastUpdated == nil {
		t.Errorf("audit fields not set: %+v", r)
	}
}

func TestUpdateReport_invalidURL(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleUser)

	_, err := c.UpdateReport(context.Background(), client.KindWork, "1", client.ReportPatch{URL: strPtr("not a url")})
	var ve *client.ValidationError
	if !errors.As(err, &ve) || ve.Field != "url" {
		t.Fatalf("err = %v, want url ValidationError", err)
	}
	if srv.TotalCalls() != 0 {
		t.Error("validation failure reached the network")
	}
}

func TestUpdateReportStatus_rejectsForeignStatus(t *testing.T) {
	c := client.MustNew("http://unused")
	_, err := c.UpdateReportStatus(context.Background(), client.KindProfile, "1", client.StatusTakenDown)
	if !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	_, err = c.UpdateReportStatus(context.Background(), client.KindWork, "1", client.Status("approved"))
	if !client.IsValidation(err) {
		t.Fatalf("dead status accepted: %v", err)
	}
}

func TestUpdateReportStatus_profile(t *testing.T) {
	srv := apitest.New(t)
	seeded := srv.AddReport(client.KindProfile, client.Report{Title: "p", URL: "https://p.example"})
	c := loggedIn(t, srv, client.RoleUser)

	r, err := c.UpdateReportStatus(context.Background(), client.KindProfile, seeded.ID, client.StatusConfirmedViolator)
	if err != nil {
		t.Fatalf("UpdateReportStatus: %v", err)
	}
	if r == nil || r.Status != client.StatusConfirmedViolator {
		t.Fatalf("got %+v", r)
	}
	if srv.Calls(http.MethodPut, "/profiles/:id/status") != 1 {
		t.Error("expected one call to /profiles/:id/status")
	}
}

func TestApproveReport(t *testing.T) {
	srv := apitest.New(t)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example"})
	c := loggedIn(t, srv, client.RoleUser)

	r, err := c.ApproveReport(context.Background(), client.KindWork, seeded.ID)
	if err != nil {
		t.Fatalf("ApproveReport: %v", err)
	}
	if !r.Approved {
		t.Error("report not approved")
	}
}

func TestDeleteReport_notFound(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleAdmin)

	err := c.DeleteReport(context.Background(), client.KindWork, "404")
	if !errors.Is(err, client.ErrNotFound) || !errors.Is(err, client.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrNotFound and ErrRequestFailed", err)
	}
}

func TestDeleteReport_forbiddenIsNotExpiry(t *testing.T) {
	srv := apitest.New(t)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example"})

	expired := 0
	c := loggedIn(t, srv, client.RoleUser, client.WithSessionExpiredHook(func(error) { expired++ }))
	err := c.DeleteReport(context.Background(), client.KindWork, seeded.ID)

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
	if errors.Is(err, client.ErrSessionExpired) || expired != 0 {
		t.Error("role rejection treated as session expiry")
	}
}

// ── auth ─────────────────────────────────────────────────────────────────────

func TestLogin_success(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("alice", "secret", client.RoleAdmin, true)

	res, err := client.MustNew(srv.URL).Login(context.Background(), client.Credentials{Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" || res.User.Username != "alice" || res.User.Role != client.RoleAdmin {
		t.Errorf("got %+v", res)
	}
}

func TestLogin_nestedUser(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token": "t",
			"user":  map[string]any{"id": 7, "username": "bob", "role": "user", "approved": true},
		})
	}))
	defer ts.Close()

	res, err := client.MustNew(ts.URL).Login(context.Background(), client.Credentials{Username: "bob", Password: "x"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != "7" || res.User.Username != "bob" {
		t.Errorf("got %+v", res.User)
	}
}

func TestLogin_badPassword(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("alice", "secret", client.RoleUser, true)

	_, err := client.MustNew(srv.URL).Login(context.Background(), client.Credentials{Username: "alice", Password: "nope"})
	if !errors.Is(err, client.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid username or password" {
		t.Errorf("backend message not preserved: %v", err)
	}
}

func TestLogin_unapproved(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("newbie", "pw", client.RoleUser, false)

	_, err := client.MustNew(srv.URL).Login(context.Background(), client.Credentials{Username: "newbie", Password: "pw"})
	if !errors.Is(err, client.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestRegister(t *testing.T) {
	srv := apitest.New(t)
	c := client.MustNew(srv.URL)

	u, err := c.Register(context.Background(), client.Registration{
		Username:     "carol",
		Password:     "pw",
		SHProfileURL: "https://www.scribblehub.com/profile/123/carol/",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Approved {
		t.Error("new account should not be approved")
	}

	_, err = c.Register(context.Background(), client.Registration{
		Username:     "carol",
		Password:     "pw",
		SHProfileURL: "https://www.scribblehub.com/profile/123/carol/",
	})
	if !errors.Is(err, client.ErrAuthFailed) {
		t.Fatalf("duplicate register err = %v, want ErrAuthFailed", err)
	}
}

func TestRegister_badProfileURL(t *testing.T) {
	_, err := client.MustNew("http://unused").Register(context.Background(), client.Registration{
		Username:     "dave",
		Password:     "pw",
		SHProfileURL: "https://example.com/me",
	})
	var ve *client.ValidationError
	if !errors.As(err, &ve) || ve.Field != "shProfileURL" {
		t.Fatalf("err = %v, want shProfileURL ValidationError", err)
	}
}

func TestSessionExpiredHook(t *testing.T) {
	srv := apitest.New(t)
	u := srv.AddUser("mod", "pw", client.RoleUser, true)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example"})

	var hookErr error
	c := client.MustNew(srv.URL,
		client.WithBearerToken(srv.IssueToken(u, -time.Minute)),
		client.WithSessionExpiredHook(func(err error) { hookErr = err }),
	)

	_, err := c.ApproveReport(context.Background(), client.KindWork, seeded.ID)
	if !errors.Is(err, client.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if hookErr == nil {
		t.Fatal("session expired hook not called")
	}
}

func TestLogout_revokesToken(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleUser)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example"})

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err := c.ApproveReport(context.Background(), client.KindWork, seeded.ID)
	if !errors.Is(err, client.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired after logout", err)
	}
}

// ── admin ────────────────────────────────────────────────────────────────────

func TestUsers_crud(t *testing.T) {
	srv := apitest.New(t)
	c := loggedIn(t, srv, client.RoleAdmin)
	pending := srv.AddUser("pending", "pw", client.RoleUser, false)

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}

	approved := true
	admin := client.RoleAdmin
	u, err := c.UpdateUser(context.Background(), pending.ID, client.UserPatch{Approved: &approved, Role: &admin})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if !u.Approved || u.Role != client.RoleAdmin {
		t.Errorf("got %+v", u)
	}

	if err := c.DeleteUser(context.Background(), pending.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok := srv.User("pending"); ok {
		t.Error("user still present after delete")
	}
}

func TestListUsers_map(t *testing.T) {
	srv := apitest.New(t, apitest.WithListsAsMap())
	c := loggedIn(t, srv, client.RoleAdmin)

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].Username != "mod" {
		t.Fatalf("got %+v", users)
	}
}

func TestUpdateUser_invalidRole(t *testing.T) {
	bad := client.Role("root")
	_, err := client.MustNew("http://unused").UpdateUser(context.Background(), "1", client.UserPatch{Role: &bad})
	if !client.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestWebhooks(t *testing.T) {
	srv := apitest.New(t, apitest.WithListsAsMap())
	c := loggedIn(t, srv, client.RoleAdmin)

	w, err := c.CreateWebhook(context.Background(), client.NewWebhook{Name: "discord", URL: "https://discord.example/hook"})
	if err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}
	if w.CreatedBy != "mod" {
		t.Errorf("createdBy = %q, want mod", w.CreatedBy)
	}

	hooks, err := c.ListWebhooks(context.Background())
	if err != nil || len(hooks) != 1 {
		t.Fatalf("ListWebhooks = %v, %v", hooks, err)
	}
	if err := c.DeleteWebhook(context.Background(), w.ID); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}

	if _, err := c.CreateWebhook(context.Background(), client.NewWebhook{Name: "x", URL: "nope"}); !client.IsValidation(err) {
		t.Errorf("invalid webhook url accepted: %v", err)
	}
}

// ── transport ────────────────────────────────────────────────────────────────

func TestRetry_getRecoversFrom5xx(t *testing.T) {
	srv := apitest.New(t)
	srv.Fail(http.MethodGet, "/works", http.StatusBadGateway, "upstream down")

	c := client.MustNew(srv.URL, client.WithRetries(2))
	if _, err := c.ListReports(context.Background(), client.KindWork); err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if n := srv.Calls(http.MethodGet, "/works"); n != 2 {
		t.Errorf("GET /works called %d times, want 2", n)
	}
}

func TestRetry_writesAreNotRetried(t *testing.T) {
	srv := apitest.New(t)
	seeded := srv.AddReport(client.KindWork, client.Report{Title: "A", URL: "https://a.example"})
	srv.Fail(http.MethodPut, "/works/:id/approve", http.StatusInternalServerError, "boom")
	c := loggedIn(t, srv, client.RoleUser, client.WithRetries(3))

	_, err := c.ApproveReport(context.Background(), client.KindWork, seeded.ID)
	if !errors.Is(err, client.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
	if n := srv.Calls(http.MethodPut, "/works/:id/approve"); n != 1 {
		t.Errorf("PUT approve called %d times, want 1", n)
	}
}

func TestRetry_4xxIsNotRetried(t *testing.T) {
	srv := apitest.New(t)
	srv.Fail(http.MethodGet, "/works", http.StatusBadRequest, "bad")

	c := client.MustNew(srv.URL, client.WithRetries(3))
	if _, err := c.ListReports(context.Background(), client.KindWork); err == nil {
		t.Fatal("expected error")
	}
	if n := srv.Calls(http.MethodGet, "/works"); n != 1 {
		t.Errorf("GET /works called %d times, want 1", n)
	}
}

func TestTimeout(t *testing.T) {
	srv := apitest.New(t, apitest.WithDelay(300*time.Millisecond))
	c := client.MustNew(srv.URL, client.WithTimeout(50*time.Millisecond))

	_, err := c.ListReports(context.Background(), client.KindWork)
	if !errors.Is(err, client.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestPlainTextErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := client.MustNew(ts.URL).ListReports(context.Background(), client.KindWork)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "service unavailable" {
		t.Fatalf("err = %v, want plain-text APIError", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c := client.MustNew(ts.URL, client.WithBearerToken("tok"))
	if _, err := c.ListReports(context.Background(), client.KindWork); err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestObserver(t *testing.T) {
	srv := apitest.New(t)
	obs := &recordingObserver{}
	c := client.MustNew(srv.URL, client.WithObserver(obs))

	c.ListReports(context.Background(), client.KindWork)
	c.ListReports(context.Background(), client.KindProfile)

	want := []string{"GET /works OK", "GET /profiles OK"}
	if len(obs.calls) != len(want) {
		t.Fatalf("observed %v, want %v", obs.calls, want)
	}
	for i := range want {
		if obs.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, obs.calls[i], want[i])
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv := apitest.New(t)
	c := client.MustNew(srv.URL, client.WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.ListReports(context.Background(), client.KindWork); err != nil {
			t.Fatalf("ListReports: %v", err)
		}
	}
	// Burst 1 at 20 rps: the 2nd and 3rd calls each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 throttled calls took %s, expected at least ~100ms", elapsed)
	}
}
