// Package admin backs the admin page: account approval and roles, and the
// webhook registry.
package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jmerrifield20/takedown/pkg/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownUser is returned when a username or id matches no loaded account.
var ErrUnknownUser = errors.New("no such user")

// API is the subset of the takedown client the console calls.
type API interface {
	ListUsers(ctx context.Context) ([]client.User, error)
	UpdateUser(ctx context.Context, id client.ID, patch client.UserPatch) (*client.User, error)
	DeleteUser(ctx context.Context, id client.ID) error
	ListWebhooks(ctx context.Context) ([]client.Webhook, error)
	CreateWebhook(ctx context.Context, nw client.NewWebhook) (*client.Webhook, error)
	DeleteWebhook(ctx context.Context, id client.ID) error
}

// Console holds the loaded users and webhooks.
type Console struct {
	api    API
	logger *zap.Logger

	mu       sync.Mutex
	users    []client.User
	webhooks []client.Webhook
}

// New creates a Console.
func New(api API, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{api: api, logger: logger}
}

// Load fetches users and webhooks concurrently. Either failure fails the
// load and leaves the previous lists in place.
func (c *Console) Load(ctx context.Context) error {
	var (
		users []client.User
		hooks []client.Webhook
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = c.api.ListUsers(gctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		hooks, err = c.api.ListWebhooks(gctx)
		if err != nil {
			return fmt.Errorf("list webhooks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slices.SortFunc(users, func(a, b client.User) int { return strings.Compare(a.Username, b.Username) })
	c.mu.Lock()
	c.users, c.webhooks = users, hooks
	c.mu.Unlock()
	return nil
}

// Users returns the loaded accounts, ordered by username.
func (c *Console) Users() []client.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.users)
}

// PendingUsers returns the accounts awaiting approval.
func (c *Console) PendingUsers() []client.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []client.User
	for _, u := range c.users {
		if !u.Approved {
			out = append(out, u)
		}
	}
	return out
}

// Webhooks returns the loaded webhooks.
func (c *Console) Webhooks() []client.Webhook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.webhooks)
}

// FindUser resolves an id or a username among the loaded accounts.
func (c *Console) FindUser(ref string) (client.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.users {
		if u.ID.String() == ref || u.Username == ref {
			return u, nil
		}
	}
	return client.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, ref)
}

// Approve lets an account log in.
func (c *Console) Approve(ctx context.Context, id client.ID) (client.User, error) {
	approved := true
	return c.update(ctx, id, client.UserPatch{Approved: &approved}, "approve")
}

// Block stops an account from logging in.
func (c *Console) Block(ctx context.Context, id client.ID) (client.User, error) {
	approved := false
	return c.update(ctx, id, client.UserPatch{Approved: &approved}, "block")
}

// SetRole promotes or demotes an account.
func (c *Console) SetRole(ctx context.Context, id client.ID, role client.Role) (client.User, error) {
	if !role.Valid() {
		return client.User{}, &client.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	return c.update(ctx, id, client.UserPatch{Role: &role}, "set role of")
}

func (c *Console) update(ctx context.Context, id client.ID, patch client.UserPatch, verb string) (client.User, error) {
	u, err := c.api.UpdateUser(ctx, id, patch)
	if err != nil {
		c.logger.Warn("user update failed", zap.String("id", id.String()), zap.String("action", verb), zap.Error(err))
		return client.User{}, fmt.Errorf("%s user %s: %w", verb, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.users {
		if c.users[i].ID == id {
			c.users[i] = *u
		}
	}
	return *u, nil
}

// DeleteUser removes an account.
func (c *Console) DeleteUser(ctx context.Context, id client.ID) error {
	if err := c.api.DeleteUser(ctx, id); err != nil {
		c.logger.Warn("delete user failed", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	c.mu.Lock()
	c.users = slices.DeleteFunc(c.users, func(u client.User) bool { return u.ID == id })
	c.mu.Unlock()
	return nil
}

// AddWebhook registers a webhook. Name and a valid url are required.
func (c *Console) AddWebhook(ctx context.Context, name, url string) (client.Webhook, error) {
	nw := client.NewWebhook{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
	if err := nw.Validate(); err != nil {
		return client.Webhook{}, err
	}
	w, err := c.api.CreateWebhook(ctx, nw)
	if err != nil {
		c.logger.Warn("add webhook failed", zap.String("name", nw.Name), zap.Error(err))
		return client.Webhook{}, fmt.Errorf("add webhook: %w", err)
	}
	c.mu.Lock()
	c.webhooks = append(c.webhooks, *w)
	c.mu.Unlock()
	return *w, nil
}

// DeleteWebhook removes a webhook.
func (c *Console) DeleteWebhook(ctx context.Context, id client.ID) error {
	if err := c.api.DeleteWebhook(ctx, id); err != nil {
		c.logger.Warn("delete webhook failed", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("delete webhook %s: %w", id, err)
	}
	c.mu.Lock()
	c.webhooks = slices.DeleteFunc(c.webhooks, func(w client.Webhook) bool { return w.ID == id })
	c.mu.Unlock()
	return nil
}
