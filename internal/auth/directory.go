package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	fbauth "firebase.google.com/go/v4/auth"
)

// ErrNoEmail means no address could be resolved for a user id
var ErrNoEmail = errors.New("auth: no email for user")

// EmailLookup resolves an email from the local users table
type EmailLookup interface {
	LookupEmail(ctx context.Context, uid string) (string, error)
}

type userGetter interface {
	GetUser(ctx context.Context, uid string) (*fbauth.UserRecord, error)
}

// Directory resolves user ids to email addresses. Firebase is asked first and
// the local users table is the fallback.
type Directory struct {
	users    userGetter
	fallback EmailLookup
}

// NewDirectory creates a directory. Either source may be nil.
func NewDirectory(users userGetter, fallback EmailLookup) *Directory {
	return &Directory{users: users, fallback: fallback}
}

// Email returns the address for uid
func (d *Directory) Email(ctx context.Context, uid string) (string, error) {
	if d.users != nil {
		rec, err := d.users.GetUser(ctx, uid)
		switch {
		case err == nil && rec != nil && rec.UserInfo != nil && rec.Email != "":
			return rec.Email, nil
		case err != nil && !fbauth.IsUserNotFound(err):
			log.Printf("Auth: Firebase user lookup for %s failed: %v", uid, err)
		}
	}

	if d.fallback != nil {
		email, err := d.fallback.LookupEmail(ctx, uid)
		if err == nil && email != "" {
			return email, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNoEmail, uid, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoEmail, uid)
}
