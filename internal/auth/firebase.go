package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Authenticator resolves the current user from a request. A nil session with a nil
// error means the request is anonymous. Cookies returned must be written to the response.
type Authenticator interface {
	CurrentUser(ctx context.Context, r *http.Request) (*Session, []*http.Cookie, error)
}

// firebaseAuth is the subset of *fbauth.Client used here
type firebaseAuth interface {
	VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*fbauth.Token, error)
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// NewFirebaseClient initializes the Firebase Admin SDK auth client
func NewFirebaseClient(ctx context.Context, credentialsPath string) (*fbauth.Client, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}
	return client, nil
}

// CookieConfig names and scopes the auth cookies
type CookieConfig struct {
	SessionName  string
	IDTokenName  string
	TTL          time.Duration
	RefreshAfter time.Duration
	Secure       bool
}

// FirebaseAuthenticator verifies Firebase session cookies and re-mints them once they age
type FirebaseAuthenticator struct {
	client  firebaseAuth
	cookies CookieConfig
	now     func() time.Time
}

func NewFirebaseAuthenticator(client firebaseAuth, cookies CookieConfig) *FirebaseAuthenticator {
	if cookies.SessionName == "" {
		cookies.SessionName = "__session"
	}
	if cookies.IDTokenName == "" {
		cookies.IDTokenName = "__id_token"
	}
	if cookies.TTL <= 0 {
		cookies.TTL = 5 * 24 * time.Hour
	}
	return &FirebaseAuthenticator{client: client, cookies: cookies, now: time.Now}
}

func (a *FirebaseAuthenticator) CurrentUser(ctx context.Context, r *http.Request) (*Session, []*http.Cookie, error) {
	ck, err := r.Cookie(a.cookies.SessionName)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && ck.Value == "") {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	tok, err := a.client.VerifySessionCookieAndCheckRevoked(ctx, ck.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify session cookie: %w", err)
	}
	sess := sessionFromToken(tok)

	if a.cookies.RefreshAfter <= 0 || a.now().Sub(sess.IssuedAt) < a.cookies.RefreshAfter {
		return sess, nil, nil
	}

	idCookie, err := r.Cookie(a.cookies.IDTokenName)
	if err != nil || idCookie.Value == "" {
		return sess, nil, nil
	}

	refreshed, cookies, err := a.refresh(ctx, sess.UID, idCookie.Value)
	if err != nil {
		// the current cookie is still valid; try again on the next request
		log.Printf("Auth: session refresh for %s failed: %v", sess.UID, err)
		return sess, nil, nil
	}
	return refreshed, cookies, nil
}

func (a *FirebaseAuthenticator) refresh(ctx context.Context, uid, idToken string) (*Session, []*http.Cookie, error) {
	tok, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	if tok.UID != uid {
		return nil, nil, fmt.Errorf("id token belongs to another user")
	}

	cookie, err := a.client.SessionCookie(ctx, idToken, a.cookies.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mint session cookie: %w", err)
	}

	sess := sessionFromToken(tok)
	sess.IssuedAt = a.now()
	sess.ExpiresAt = sess.IssuedAt.Add(a.cookies.TTL)

	return sess, []*http.Cookie{
		a.SessionCookie(cookie),
		a.expire(a.cookies.IDTokenName),
	}, nil
}

// SignIn exchanges a fresh ID token for a session cookie
func (a *FirebaseAuthenticator) SignIn(ctx context.Context, idToken string) (*Session, *http.Cookie, error) {
	tok, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	cookie, err := a.client.SessionCookie(ctx, idToken, a.cookies.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mint session cookie: %w", err)
	}
	sess := sessionFromToken(tok)
	sess.IssuedAt = a.now()
	sess.ExpiresAt = sess.IssuedAt.Add(a.cookies.TTL)
	return sess, a.SessionCookie(cookie), nil
}

// SessionCookie wraps a minted session value in an http.Cookie
func (a *FirebaseAuthenticator) SessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     a.cookies.SessionName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SignOutCookies clears both auth cookies
func (a *FirebaseAuthenticator) SignOutCookies() []*http.Cookie {
	return []*http.Cookie{a.expire(a.cookies.SessionName), a.expire(a.cookies.IDTokenName)}
}

func (a *FirebaseAuthenticator) expire(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func sessionFromToken(tok *fbauth.Token) *Session {
	s := &Session{
		UID:       tok.UID,
		IssuedAt:  time.Unix(tok.IssuedAt, 0),
		ExpiresAt: time.Unix(tok.Expires, 0),
	}
	if email, ok := tok.Claims["email"].(string); ok {
		s.Email = email
	}
	if name, ok := tok.Claims["name"].(string); ok {
		s.Name = name
	}
	return s
}
