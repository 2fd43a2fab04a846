package apitest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/takedown/pkg/client"
	"golang.org/x/crypto/bcrypt"
)

// ── auth ─────────────────────────────────────────────────────────────────────

func (s *Server) login(c *gin.Context) {
	var req client.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	var acct *account
	for _, a := range s.accounts {
		if a.user.Username == req.Username {
			acct = a
			break
		}
	}
	s.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}
	if !acct.user.Approved {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account pending admin approval"})
		return
	}

	u := acct.user
	c.JSON(http.StatusOK, gin.H{
		"token":        s.IssueToken(u, s.tokenTTL),
		"id":           u.ID,
		"username":     u.Username,
		"shProfileURL": u.SHProfileURL,
		"role":         u.Role,
		"approved":     u.Approved,
	})
}

func (s *Server) register(c *gin.Context) {
	var req client.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	if _, taken := s.User(req.Username); taken {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	u := client.User{
		ID:           client.ID(uuid.NewString()),
		Username:     req.Username,
		SHProfileURL: req.SHProfileURL,
		Role:         client.RoleUser,
	}
	s.mu.Lock()
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.mu.Unlock()
	c.JSON(http.StatusCreated, u)
}

func (s *Server) logout(c *gin.Context) {
	s.mu.Lock()
	s.revoked[bearer(c)] = true
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ── users ────────────────────────────────────────────────────────────────────

func (s *Server) listUsers(c *gin.Context) {
	s.mu.Lock()
	out := make(map[client.ID]client.User, len(s.accounts))
	for id, a := range s.accounts {
		out[id] = a.user
	}
	s.mu.Unlock()

	if s.listMap {
		c.JSON(http.StatusOK, out)
		return
	}
	list := make([]client.User, 0, len(out))
	for _, u := range out {
		list = append(list, u)
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

func (s *Server) updateUser(c *gin.Context) {
	var patch client.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := client.ID(c.Param("id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if patch.Approved != nil {
		a.user.Approved = *patch.Approved
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		a.user.Role = *patch.Role
	}
	c.JSON(http.StatusOK, a.user)
}

func (s *Server) deleteUser(c *gin.Context) {
	id := client.ID(c.Param("id"))
	if claims := claimsFrom(c); claims != nil && claims.UserID == id.String() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	delete(s.accounts, id)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// ── webhooks ─────────────────────────────────────────────────────────────────

func (s *Server) listWebhooks(c *gin.Context) {
	s.mu.Lock()
	out := make(map[client.ID]client.Webhook, len(s.webhooks))
	for id, w := range s.webhooks {
		out[id] = *w
	}
	s.mu.Unlock()

	if s.listMap {
		c.JSON(http.StatusOK, out)
		return
	}
	list := make([]client.Webhook, 0, len(out))
	for _, w := range out {
		list = append(list, w)
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createWebhook(c *gin.Context) {
	var req client.NewWebhook
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and url are required"})
		return
	}
	now := time.Now().UTC()
	w := client.Webhook{
		ID:        client.ID(uuid.NewString()),
		Name:      req.Name,
		URL:       req.URL,
		Created:   &now,
		CreatedBy: claimsFrom(c).Username,
	}
	s.mu.Lock()
	s.webhooks[w.ID] = &w
	s.mu.Unlock()
	c.JSON(http.StatusCreated, w)
}

func (s *Server) deleteWebhook(c *gin.Context) {
	id := client.ID(c.Param("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
		return
	}
	delete(s.webhooks, id)
	c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
}

// ── reports ──────────────────────────────────────────────────────────────────

type reportHandler struct {
	srv  *Server
	kind client.Kind
}

func (h *reportHandler) list(c *gin.Context) {
	h.srv.mu.Lock()
	out := make(map[client.ID]client.Report, len(h.srv.reports[h.kind]))
	for id, r := range h.srv.reports[h.kind] {
		out[id] = r.Clone()
	}
	h.srv.mu.Unlock()

	if h.srv.listMap {
		c.JSON(http.StatusOK, out)
		return
	}
	list := make([]client.Report, 0, len(out))
	for _, r := range out {
		list = append(list, r)
	}
	c.JSON(http.StatusOK, list)
}

func (h *reportHandler) create(c *gin.Context) {
	var req client.NewReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL == "" || len(req.Proofs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and at least one proof are required"})
		return
	}
	reporter := req.Reporter
	if reporter == "" {
		reporter = claimsFrom(c).Username
	}
	now := time.Now().UTC().Truncate(time.Second)

	h.srv.mu.Lock()
	r := h.srv.insertReport(h.kind, client.Report{
		Title:        req.Title,
		URL:          req.URL,
		Status:       client.StatusPendingReview,
		Proofs:       req.Proofs,
		Reason:       req.Reason,
		Reporter:     reporter,
		DateReported: &now,
	})
	h.srv.mu.Unlock()
	c.JSON(http.StatusCreated, r)
}

// mutate applies fn to a stored report under the lock and answers with the
// updated record.
func (h *reportHandler) mutate(c *gin.Context, fn func(r *client.Report) (int, string)) {
	id := client.ID(c.Param("id"))
	username := ""
	if claims := claimsFrom(c); claims != nil {
		username = claims.Username
	}

	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	r, ok := h.srv.reports[h.kind][id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if status, msg := fn(r); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	now := time.Now().UTC().Truncate(time.Second)
	r.LastUpdated = &now
	r.UpdatedBy = username
	c.JSON(http.StatusOK, r.Clone())
}

func (h *reportHandler) update(c *gin.Context) {
	var patch client.ReportPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, func(r *client.Report) (int, string) {
		if patch.Title != nil {
			r.Title = *patch.Title
		}
		if patch.URL != nil {
			r.URL = *patch.URL
		}
		if patch.Reason != nil {
			r.Reason = *patch.Reason
		}
		if patch.AdditionalInfo != nil {
			r.AdditionalInfo = *patch.AdditionalInfo
		}
		if patch.Proofs != nil {
			r.Proofs = append([]string(nil), patch.Proofs...)
		}
		return 0, ""
	})
}

func (h *reportHandler) updateStatus(c *gin.Context) {
	var req struct {
		Status client.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, func(r *client.Report) (int, string) {
		if !h.kind.Allows(req.Status) {
			return http.StatusBadRequest, "Invalid status"
		}
		r.Status = req.Status
		r.Approved = true
		return 0, ""
	})
}

func (h *reportHandler) approve(c *gin.Context) {
	h.mutate(c, func(r *client.Report) (int, string) {
		r.Approved = true
		return 0, ""
	})
}

func (h *reportHandler) remove(c *gin.Context) {
	id := client.ID(c.Param("id"))
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	if _, ok := h.srv.reports[h.kind][id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	delete(h.srv.reports[h.kind], id)
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}
