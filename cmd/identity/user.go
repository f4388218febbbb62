package identity

import (
	"context"
	"strings"
)

// DefaultGuestAvatar is used when a guest does not pick an avatar.
const DefaultGuestAvatar = "👤"

// User is the signed-in principal supplied by the hosting application.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Guest is an account-less applicant identified only by what they typed.
type Guest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// SessionProvider resolves the current user. It returns ErrNoSession for the
// anonymous path; callers then fall back to guest flows.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (User, error)
}

// Anonymous is a SessionProvider with no signed-in user.
type Anonymous struct{}

// CurrentUser always reports ErrNoSession.
func (Anonymous) CurrentUser(context.Context) (User, error) { return User{}, ErrNoSession }

// StaticSession always returns the same user. Useful for embedding and tests.
type StaticSession struct {
	User User
}

// CurrentUser returns the configured user, or ErrNoSession when its id is blank.
func (s StaticSession) CurrentUser(context.Context) (User, error) {
	if strings.TrimSpace(s.User.ID) == "" {
		return User{}, ErrNoSession
	}
	return s.User, nil
}

type ctxKey struct{}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// ContextSession reads the user attached with WithUser.
type ContextSession struct{}

// CurrentUser returns the user stored in ctx, or ErrNoSession.
func (ContextSession) CurrentUser(ctx context.Context) (User, error) {
	u, ok := ctx.Value(ctxKey{}).(User)
	if !ok || strings.TrimSpace(u.ID) == "" {
		return User{}, ErrNoSession
	}
	return u, nil
}
