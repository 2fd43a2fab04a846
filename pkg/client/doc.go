// Package client is the takedown Go SDK.
//
// It wraps the moderation REST API: logging in, listing and moderating
// reports about works and profiles, and managing user accounts and
// webhooks.
//
// # Anonymous reads
//
// Listing reports is public:
//
//	c, _ := client.New("https://api.example.org")
//	works, err := c.ListReports(ctx, client.KindWork)
//
// # Authenticating
//
// Login returns the identity and a bearer token. Attach the token to the
// client to make moderated calls:
//
//	res, err := c.Login(ctx, client.Credentials{Username: "mod", Password: "..."})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.SetToken(res.Token)
//
// A 401 or 403 whose message mentions the token is reported as
// ErrSessionExpired, and the hook registered with WithSessionExpiredHook is
// called so the owner of the token can drop it.
//
// # Moderating
//
//	title := "Renamed"
//	r, err := c.UpdateReport(ctx, client.KindWork, "12", client.ReportPatch{Title: &title})
//	_, err = c.UpdateReportStatus(ctx, client.KindWork, "12", client.StatusTakenDown)
//	_, err = c.ApproveReport(ctx, client.KindWork, "12")
//
// Payloads are validated before anything is sent; a rejected value comes
// back as a *ValidationError.
//
// # Errors
//
// Every failure falls in one category testable with errors.Is:
// ErrRequestFailed (transport, timeout, non-2xx), ErrAuthFailed (login or
// registration rejected), ErrSessionExpired (token rejected). Non-2xx
// responses are *APIError values carrying the backend's message.
package client
