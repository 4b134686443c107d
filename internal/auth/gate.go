package auth

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// UserRecorder keeps a local copy of signed-in users
type UserRecorder interface {
	UpsertUser(ctx context.Context, id, email, displayName string, seenAt time.Time) error
}

// GateConfig lists the protected areas of the site
type GateConfig struct {
	ProtectedPrefixes []string
	AdminPrefixes     []string
	AdminEmails       []string
	LoginPath         string
	SignedInHome      string
}

// Gate is the access middleware in front of every route
type Gate struct {
	auth   Authenticator
	cfg    GateConfig
	admins map[string]struct{}
	users  UserRecorder
	hub    *SessionHub
	now    func() time.Time
}

// NewGate creates the gate. users and hub may be nil.
func NewGate(a Authenticator, cfg GateConfig, users UserRecorder, hub *SessionHub) *Gate {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.SignedInHome == "" {
		cfg.SignedInHome = "/projects"
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Gate{auth: a, cfg: cfg, admins: admins, users: users, hub: hub, now: time.Now}
}

// IsAdmin reports whether email is on the allow-list, ignoring case
func (g *Gate) IsAdmin(email string) bool {
	e := normalizeEmail(email)
	if e == "" {
		return false
	}
	_, ok := g.admins[e]
	return ok
}

// Middleware resolves the session, writes refreshed cookies and enforces the protected prefixes
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		ctx := c.Request.Context()

		var sess *Session
		if g.auth != nil {
			s, cookies, err := g.auth.CurrentUser(ctx, c.Request)
			if err != nil {
				log.Printf("Auth: session lookup failed for %s: %v", path, err)
				s, cookies = nil, nil
			}
			for _, ck := range cookies {
				http.SetCookie(c.Writer, ck)
			}
			sess = s
			if sess != nil && len(cookies) > 0 {
				g.hub.Publish(Event{Type: EventRefreshed, UID: sess.UID, Email: sess.Email})
			}
		}

		if sess != nil {
			WithSession(c, sess)
			g.recordUser(ctx, sess)
		}

		if matchesAny(path, g.cfg.ProtectedPrefixes) || matchesAny(path, g.cfg.AdminPrefixes) {
			if sess == nil {
				c.Redirect(http.StatusTemporaryRedirect, g.loginURL(path))
				c.Abort()
				return
			}
		}

		if matchesAny(path, g.cfg.AdminPrefixes) && !g.IsAdmin(sess.Email) {
			c.Redirect(http.StatusTemporaryRedirect, g.cfg.SignedInHome)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (g *Gate) recordUser(ctx context.Context, sess *Session) {
	if g.users == nil {
		return
	}
	if err := g.users.UpsertUser(ctx, sess.UID, sess.Email, sess.Name, g.now()); err != nil {
		log.Printf("Auth: failed to record user %s: %v", sess.UID, err)
	}
}

func (g *Gate) loginURL(path string) string {
	q := url.Values{}
	q.Set("redirectTo", path)
	return g.cfg.LoginPath + "?" + q.Encode()
}

// matchesAny reports whether path is one of the prefixes or below one of them
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
