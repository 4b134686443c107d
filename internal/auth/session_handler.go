package auth

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SignInService exchanges ID tokens for session cookies
type SignInService interface {
	SignIn(ctx context.Context, idToken string) (*Session, *http.Cookie, error)
	SignOutCookies() []*http.Cookie
}

// SessionHandler serves /api/session
type SessionHandler struct {
	svc   SignInService
	users UserRecorder
	hub   *SessionHub
}

func NewSessionHandler(svc SignInService, users UserRecorder, hub *SessionHub) *SessionHandler {
	return &SessionHandler{svc: svc, users: users, hub: hub}
}

type signInRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// SignIn handles POST /api/session
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idToken is required"})
		return
	}

	sess, cookie, err := h.svc.SignIn(c.Request.Context(), req.IDToken)
	if err != nil {
		log.Printf("Auth: sign-in failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token"})
		return
	}
	http.SetCookie(c.Writer, cookie)

	if h.users != nil {
		if err := h.users.UpsertUser(c.Request.Context(), sess.UID, sess.Email, sess.Name, sess.IssuedAt); err != nil {
			log.Printf("Auth: failed to record user %s: %v", sess.UID, err)
		}
	}
	h.hub.Publish(Event{Type: EventSignedIn, UID: sess.UID, Email: sess.Email})

	c.JSON(http.StatusOK, gin.H{
		"uid":        sess.UID,
		"email":      sess.Email,
		"expires_at": sess.ExpiresAt,
	})
}

// SignOut handles DELETE /api/session
func (h *SessionHandler) SignOut(c *gin.Context) {
	for _, ck := range h.svc.SignOutCookies() {
		http.SetCookie(c.Writer, ck)
	}
	if sess, ok := SessionFrom(c); ok {
		h.hub.Publish(Event{Type: EventSignedOut, UID: sess.UID, Email: sess.Email})
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}
