// Package auth turns bearer tokens issued by the external auth service into
// principals and performs the capability checks used by the services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-service/internal/apperr"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// RequireAdmin fails with Forbidden unless p is an admin.
func RequireAdmin(p Principal) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

// RequireOwnerOrAdmin fails with Forbidden unless p owns the resource or is an admin.
func RequireOwnerOrAdmin(p Principal, ownerID string) error {
	if p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID) {
		return nil
	}
	return apperr.Forbidden("not authorized to access this order")
}

var ErrInvalidToken = errors.New("invalid or expired token")

// Resolver maps a bearer token to a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// SessionStore is the session lookup exposed by redisclient.Client.
type SessionStore interface {
	GetSession(ctx context.Context, token string) (userID, role string, err error)
}

// SessionResolver resolves tokens against sessions shared with the auth service.
type SessionResolver struct {
	sessions SessionStore
	notFound error
}

// NewSessionResolver wraps a session store. notFound is the store's error for
// an unknown token; it is reported as ErrInvalidToken.
func NewSessionResolver(sessions SessionStore, notFound error) *SessionResolver {
	return &SessionResolver{sessions: sessions, notFound: notFound}
}

func (r *SessionResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	userID, role, err := r.sessions.GetSession(ctx, token)
	if err != nil {
		if r.notFound != nil && errors.Is(err, r.notFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, fmt.Errorf("session lookup failed: %w", err)
	}
	return Principal{UserID: userID, Role: normalizeRole(role)}, nil
}

// StaticResolver serves a fixed token table. Used when Redis is disabled.
type StaticResolver map[string]Principal

// ParseStaticTokens reads "token:userID:role" entries separated by commas.
func ParseStaticTokens(list string) (StaticResolver, error) {
	out := StaticResolver{}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid static token entry %q", entry)
		}
		out[parts[0]] = Principal{UserID: parts[1], Role: normalizeRole(parts[2])}
	}
	return out, nil
}

func (s StaticResolver) Resolve(_ context.Context, token string) (Principal, error) {
	p, ok := s[token]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

func normalizeRole(role string) Role {
	if Role(strings.ToLower(role)) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}
