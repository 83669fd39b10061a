package auth

import (
	"context"
	"fmt"

	"github.com/threadline/chat-relay/pkg/store"
)

// Identity is the relay-side view of an authenticated user: the local numeric
// id plus the display attributes cached on the connection at auth time.
type Identity struct {
	UserID      int64
	DisplayName string
	Handle      string
}

// Resolver turns an opaque external auth token into a local identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// StoreResolver verifies the token and maps its external subject to a local
// user record, creating one lazily on first sight.
type StoreResolver struct {
	users *store.Users
}

func NewResolver(users *store.Users) *StoreResolver {
	return &StoreResolver{users: users}
}

func (r *StoreResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := ValidateToken(token)
	if err != nil {
		return Identity{}, fmt.Errorf("validate token: %w", err)
	}

	u, err := r.users.GetOrCreate(ctx, claims.Subject, claims.DisplayName, claims.Handle)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve user: %w", err)
	}
	if u.ID <= 0 {
		return Identity{}, fmt.Errorf("resolved invalid user id %d", u.ID)
	}

	return Identity{UserID: u.ID, DisplayName: u.DisplayName, Handle: u.Handle}, nil
}
