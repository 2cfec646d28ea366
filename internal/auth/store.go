package auth

import (
	"context"
	"errors"
)

// UserFinder is the read side of the identity store the gate depends on.
// Both lookups return ErrUserNotFound when no row matches.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// Resolver maps decoded claims to the live user record.
type Resolver struct {
	users UserFinder
}

// NewResolver builds a resolver over users.
func NewResolver(users UserFinder) *Resolver {
	return &Resolver{users: users}
}

// Resolve loads the subject of claims. A missing user is a KindNotFound
// denial and a deactivated one is KindForbidden.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (User, error) {
	if claims == nil || claims.Subject == "" {
		return User{}, deny(KindInvalidCredential, ReasonMalformed, nil)
	}
	user, err := r.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, deny(KindNotFound, ReasonUnknownUser, err)
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, deny(KindForbidden, ReasonDeactivated, nil)
	}
	return user, nil
}
