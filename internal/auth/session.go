package auth

import (
	"time"

	"github.com/gin-gonic/gin"
)

const ctxSession = "auth_session"

// Session is the signed-in user resolved for the current request
type Session struct {
	UID       string
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionFrom returns the session stored by the gate, if any
func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok && s != nil
}

// WithSession stores s on the request context
func WithSession(c *gin.Context, s *Session) {
	c.Set(ctxSession, s)
}
