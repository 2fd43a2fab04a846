// Package apitest runs an in-memory implementation of the moderation REST
// API for tests. It is not a production backend: state lives in maps, tokens
// are signed with a per-server HMAC secret, and failures can be injected per
// route.
package apitest

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/takedown/pkg/client"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user client.User
	hash []byte
}

type failure struct {
	method string
	route  string
	status int
	msg    string
}

// Server is a running fake backend. Use URL as the client base URL.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	listMap  bool
	accounts map[client.ID]*account
	reports  map[client.Kind]map[client.ID]*client.Report
	webhooks map[client.ID]*client.Webhook
	nextID   map[client.Kind]int64
	revoked  map[string]bool
	failures []failure
	calls    map[string]int
	delay    time.Duration
}

// Option customises a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of tokens issued by /login.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithListsAsMap makes list endpoints answer with objects keyed by id
// instead of arrays.
func WithListsAsMap() Option {
	return func(s *Server) { s.listMap = true }
}

// WithDelay slows every response down, for timeout tests.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate token secret: %v", err)
	}

	s := &Server{
		secret:   secret,
		tokenTTL: time.Hour,
		accounts: make(map[client.ID]*account),
		reports: map[client.Kind]map[client.ID]*client.Report{
			client.KindWork:    {},
			client.KindProfile: {},
		},
		webhooks: make(map[client.ID]*client.Webhook),
		nextID:   map[client.Kind]int64{client.KindWork: 1, client.KindProfile: 1},
		revoked:  make(map[string]bool),
		calls:    make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}

	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.intercept())

	r.POST("/login", s.login)
	r.POST("/register", s.register)
	r.POST("/logout", s.requireToken(), s.logout)

	users := r.Group("/users", s.requireToken(), s.requireAdmin())
	{
		users.GET("", s.listUsers)
		users.PUT("/:id", s.updateUser)
		users.DELETE("/:id", s.deleteUser)
	}

	hooks := r.Group("/webhooks", s.requireToken(), s.requireAdmin())
	{
		hooks.GET("", s.listWebhooks)
		hooks.POST("", s.createWebhook)
		hooks.DELETE("/:id", s.deleteWebhook)
	}

	for _, kind := range []client.Kind{client.KindWork, client.KindProfile} {
		h := &reportHandler{srv: s, kind: kind}
		g := r.Group("/" + kind.Resource())
		g.GET("", h.list)
		g.POST("", s.requireToken(), h.create)
		g.PUT("/:id", s.requireToken(), h.update)
		g.PUT("/:id/status", s.requireToken(), h.updateStatus)
		g.PUT("/:id/approve", s.requireToken(), h.approve)
		g.DELETE("/:id", s.requireToken(), s.requireAdmin(), h.remove)
	}
	return r
}

// intercept counts calls per route and serves injected failures.
func (s *Server) intercept() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		s.mu.Lock()
		s.calls[c.Request.Method+" "+route]++
		var injected *failure
		for i, f := range s.failures {
			if f.method == c.Request.Method && f.route == route {
				injected = &f
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				break
			}
		}
		s.mu.Unlock()

		if injected != nil {
			c.AbortWithStatusJSON(injected.status, gin.H{"error": injected.msg})
			return
		}
		c.Next()
	}
}

// Fail makes the next request matching method and route (a gin route
// template such as "/works/:id/status") fail with status and msg.
func (s *Server) Fail(method, route string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, route: route, status: status, msg: msg})
}

// Calls returns how many requests reached method and route.
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+route]
}

// TotalCalls returns how many requests the server has received.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// AddUser seeds an account.
func (s *Server) AddUser(username, password string, role client.Role, approved bool) client.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("hash password: %v", err))
	}
	u := client.User{
		ID:           client.ID(uuid.NewString()),
		Username:     username,
		SHProfileURL: "https://www.scribblehub.com/profile/1/" + username + "/",
		Role:         role,
		Approved:     approved,
	}
	s.mu.Lock()
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.mu.Unlock()
	return u
}

// User looks up a seeded or registered account by username.
func (s *Server) User(username string) (client.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.Username == username {
			return a.user, true
		}
	}
	return client.User{}, false
}

// AddReport seeds a report, assigning the next numeric id when r.ID is empty.
func (s *Server) AddReport(kind client.Kind, r client.Report) client.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertReport(kind, r)
}

func (s *Server) insertReport(kind client.Kind, r client.Report) client.Report {
	if r.ID == "" {
		r.ID = client.ID(strconv.FormatInt(s.nextID[kind], 10))
	}
	if n, ok := r.ID.Int(); ok && n >= s.nextID[kind] {
		s.nextID[kind] = n + 1
	}
	if r.Status == "" {
		r.Status = client.StatusPendingReview
	}
	r.Kind = kind
	cp := r.Clone()
	s.reports[kind][r.ID] = &cp
	return r
}

// Report returns the stored copy of a report.
func (s *Server) Report(kind client.Kind, id client.ID) (client.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[kind][id]
	if !ok {
		return client.Report{}, false
	}
	return r.Clone(), true
}

// AddWebhook seeds a webhook.
func (s *Server) AddWebhook(name, url string) client.Webhook {
	now := time.Now().UTC()
	w := client.Webhook{ID: client.ID(uuid.NewString()), Name: name, URL: url, Created: &now, CreatedBy: "seed"}
	s.mu.Lock()
	s.webhooks[w.ID] = &w
	s.mu.Unlock()
	return w
}

// Claims are carried by tokens the server issues.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     client.Role `json:"role"`
}

// IssueToken signs a token for u that expires after ttl. A negative ttl
// yields an already expired token.
func (s *Server) IssueToken(u client.User, ttl time.Duration) string {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:   u.ID.String(),
		Username: u.Username,
		Role:     u.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return signed
}

func (s *Server) verify(tokenStr string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

const ctxClaims = "apitest.claims"

func claimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func bearer(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		s.mu.Lock()
		revoked := s.revoked[tok]
		s.mu.Unlock()
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has been revoked"})
			return
		}
		claims, err := s.verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token: " + err.Error()})
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || claims.Role != client.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
