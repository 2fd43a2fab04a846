package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges credentials for the account identity and a bearer token.
// The token is not attached to the client; callers (normally the session
// store) decide whether to keep it. Rejections wrap ErrAuthFailed and carry
// the backend's message.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, &ValidationError{Field: "credentials", Message: "username and password are required"}
	}
	body, err := c.send(ctx, call{method: http.MethodPost, route: "/login", path: "/login", body: creds})
	if err != nil {
		return nil, asAuthFailure(err)
	}

	// The backend answers either {token, ...user} or {token, user: {...}}.
	var flat struct {
		User
		Token  string `json:"token"`
		Nested *User  `json:"user"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: decode login response: %v", ErrRequestFailed, err)
	}
	u := flat.User
	if flat.Nested != nil {
		u = *flat.Nested
	}
	if flat.Token == "" {
		return nil, fmt.Errorf("%w: login response carried no token", ErrAuthFailed)
	}
	return &AuthResult{User: u, Token: flat.Token}, nil
}

// Register creates an unapproved account. The account cannot log in until
// an admin approves it.
func (c *Client) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	var u User
	if err := c.sendJSON(ctx, call{method: http.MethodPost, route: "/register", path: "/register", body: reg}, &u); err != nil {
		return nil, asAuthFailure(err)
	}
	return &u, nil
}

// Logout invalidates the current token server-side. It does not clear the
// token held by the client.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.send(ctx, call{method: http.MethodPost, route: "/logout", path: "/logout", auth: true})
	return err
}

// asAuthFailure recategorises 4xx responses from the auth endpoints.
func asAuthFailure(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		apiErr.kind = ErrAuthFailed
	}
	return err
}
