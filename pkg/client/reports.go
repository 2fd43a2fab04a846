package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func reportPath(kind Kind, id ID, suffix string) string {
	return "/" + kind.Resource() + "/" + url.PathEscape(id.String()) + suffix
}

func checkKind(kind Kind) error {
	if !kind.Valid() {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown report kind %q", kind)}
	}
	return nil
}

// ListReports returns every report of the given kind. The endpoint is public;
// the token is still attached so the backend may include the caller's
// unapproved reports. Both array and id-keyed object responses are accepted.
func (c *Client) ListReports(ctx context.Context, kind Kind) ([]Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	route := "/" + kind.Resource()
	body, err := c.send(ctx, call{method: http.MethodGet, route: route, path: route, auth: true})
	if err != nil {
		return nil, err
	}
	reports, err := decodeCollection(body, func(r *Report, key string) {
		if r.ID == "" {
			r.ID = ID(key)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrRequestFailed, route, err)
	}
	for i := range reports {
		reports[i].Kind = kind
	}
	return reports, nil
}

// CreateReport submits a new report. It is validated before being sent.
func (c *Client) CreateReport(ctx context.Context, kind Kind, nr NewReport) (*Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := nr.Validate(); err != nil {
		return nil, err
	}
	route := "/" + kind.Resource()
	var r Report
	if err := c.sendJSON(ctx, call{method: http.MethodPost, route: route, path: route, body: nr, auth: true}, &r); err != nil {
		return nil, err
	}
	r.Kind = kind
	return &r, nil
}

// UpdateReport applies a partial update and returns the full stored record.
func (c *Client) UpdateReport(ctx context.Context, kind Kind, id ID, patch ReportPatch) (*Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var r Report
	cl := call{
		method: http.MethodPut,
		route:  "/" + kind.Resource() + "/:id",
		path:   reportPath(kind, id, ""),
		body:   patch,
		auth:   true,
	}
	if err := c.sendJSON(ctx, cl, &r); err != nil {
		return nil, err
	}
	r.Kind = kind
	return &r, nil
}

// UpdateReportStatus sets only the status. The returned record is nil when
// the backend answers without a body.
func (c *Client) UpdateReportStatus(ctx context.Context, kind Kind, id ID, status Status) (*Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if !kind.Allows(status) {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a %s status", status, kind)}
	}
	var r Report
	cl := call{
		method: http.MethodPut,
		route:  "/" + kind.Resource() + "/:id/status",
		path:   reportPath(kind, id, "/status"),
		body:   map[string]Status{"status": status},
		auth:   true,
	}
	if err := c.sendJSON(ctx, cl, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, nil
	}
	r.Kind = kind
	return &r, nil
}

// ApproveReport marks a report approved and returns the stored record.
func (c *Client) ApproveReport(ctx context.Context, kind Kind, id ID) (*Report, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	var r Report
	cl := call{
		method: http.MethodPut,
		route:  "/" + kind.Resource() + "/:id/approve",
		path:   reportPath(kind, id, "/approve"),
		auth:   true,
	}
	if err := c.sendJSON(ctx, cl, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = id
	}
	r.Kind = kind
	return &r, nil
}

// DeleteReport removes a report. The backend restricts this to admins.
func (c *Client) DeleteReport(ctx context.Context, kind Kind, id ID) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	_, err := c.send(ctx, call{
		method: http.MethodDelete,
		route:  "/" + kind.Resource() + "/:id",
		path:   reportPath(kind, id, ""),
		auth:   true,
	})
	return err
}
