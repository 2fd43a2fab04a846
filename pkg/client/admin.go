package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ListUsers returns every account. The backend answers either with an array
// or with {"users": [...]}.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, route: "/users", path: "/users", auth: true})
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Users *[]User `json:"users"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Users != nil {
			return *wrapper.Users, nil
		}
	}
	users, err := decodeCollection(trimmed, func(u *User, key string) {
		if u.ID == "" {
			u.ID = ID(key)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decode /users: %v", ErrRequestFailed, err)
	}
	return users, nil
}

// UpdateUser applies a partial account update (approve, block, role).
func (c *Client) UpdateUser(ctx context.Context, id ID, patch UserPatch) (*User, error) {
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", *patch.Role)}
	}
	var u User
	cl := call{
		method: http.MethodPut,
		route:  "/users/:id",
		path:   "/users/" + url.PathEscape(id.String()),
		body:   patch,
		auth:   true,
	}
	if err := c.sendJSON(ctx, cl, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = id
	}
	return &u, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id ID) error {
	_, err := c.send(ctx, call{
		method: http.MethodDelete,
		route:  "/users/:id",
		path:   "/users/" + url.PathEscape(id.String()),
		auth:   true,
	})
	return err
}

// ListWebhooks returns the registered webhooks. The backend answers either
// with an array or with an object keyed by webhook id.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, route: "/webhooks", path: "/webhooks", auth: true})
	if err != nil {
		return nil, err
	}
	hooks, err := decodeCollection(body, func(w *Webhook, key string) {
		if w.ID == "" {
			w.ID = ID(key)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decode /webhooks: %v", ErrRequestFailed, err)
	}
	return hooks, nil
}

// CreateWebhook registers a webhook.
func (c *Client) CreateWebhook(ctx context.Context, nw NewWebhook) (*Webhook, error) {
	if err := nw.Validate(); err != nil {
		return nil, err
	}
	var w Webhook
	if err := c.sendJSON(ctx, call{method: http.MethodPost, route: "/webhooks", path: "/webhooks", body: nw, auth: true}, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, id ID) error {
	_, err := c.send(ctx, call{
		method: http.MethodDelete,
		route:  "/webhooks/:id",
		path:   "/webhooks/" + url.PathEscape(id.String()),
		auth:   true,
	})
	return err
}
