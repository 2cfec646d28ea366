package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Gate authenticates a bearer credential and returns the live user.
type Gate func(ctx context.Context, credential string) (User, error)

// DecisionObserver receives the outcome of every gate evaluation. resource
// is empty for the plain identity gate; outcome is "granted" or the denial
// reason.
type DecisionObserver func(resource Resource, outcome string)

// Guard composes the codec, resolver and matrix into request gates.
type Guard struct {
	codec    *Codec
	resolver *Resolver
	matrix   Matrix
	observe  DecisionObserver
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithDecisionObserver installs fn as the decision observer.
func WithDecisionObserver(fn DecisionObserver) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.observe = fn
		}
	}
}

// NewGuard wires a guard. The matrix is captured by value and never changes
// afterwards.
func NewGuard(codec *Codec, users UserFinder, matrix Matrix, opts ...GuardOption) (*Guard, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if users == nil {
		return nil, errors.New("auth: user finder is required")
	}
	g := &Guard{
		codec:    codec,
		resolver: NewResolver(users),
		matrix:   matrix,
		observe:  func(Resource, string) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Codec exposes the token codec the guard verifies with.
func (g *Guard) Codec() *Codec { return g.codec }

// Identify is the plain identity gate: decode then resolve.
func (g *Guard) Identify(ctx context.Context, credential string) (User, error) {
	user, err := g.identify(ctx, credential)
	g.record("", err)
	return user, err
}

// Require binds (resource, actions) once and returns the permission gate.
func (g *Guard) Require(resource Resource, actions ...Action) Gate {
	bound := append([]Action(nil), actions...)
	return func(ctx context.Context, credential string) (User, error) {
		user, err := g.identify(ctx, credential)
		if err == nil {
			user, err = g.matrix.Authorize(user, resource, bound...)
		}
		g.record(resource, err)
		return user, err
	}
}

// IssueFor signs an access token for user with the user's current
// organization, branch and role as metadata.
func (g *Guard) IssueFor(user User, ttl time.Duration) (string, error) {
	return g.codec.Issue(user.ID, ttl, Metadata{
		OrganizationID: user.OrganizationID,
		BranchID:       user.CurrentBranchID,
		Role:           user.Role,
	})
}

func (g *Guard) identify(ctx context.Context, credential string) (User, error) {
	claims, err := g.codec.Decode(credential)
	if err != nil {
		return User{}, err
	}
	return g.resolver.Resolve(ctx, claims)
}

func (g *Guard) record(resource Resource, err error) {
	if err == nil {
		g.observe(resource, "granted")
		return
	}
	if d, ok := AsDenial(err); ok {
		g.observe(resource, d.Reason)
		return
	}
	g.observe(resource, "error")
}

// BearerToken extracts the credential from an Authorization header value.
// It returns "" when the header is absent or uses another scheme.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
