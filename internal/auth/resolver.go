package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/users"
	"go.uber.org/zap"
)

const opResolve = "auth.resolve"

// Session is the per-request authenticated identity consumed by the vote
// and redemption state machines.
type Session struct {
	TwitchUserID string
	Username     string
	IsAdmin      bool
}

// IdentityValidator confirms a raw provider access token.
type IdentityValidator interface {
	Validate(ctx context.Context, accessToken string) (TwitchIdentity, error)
}

// AccountLookup resolves the stored account for a validated identity.
type AccountLookup interface {
	Lookup(ctx context.Context, twitchUserID string) (users.User, error)
}

// ResolverConfig wires the resolver's collaborators.
type ResolverConfig struct {
	Sessions *SessionIssuer
	Identity IdentityValidator
	Accounts AccountLookup
	Logger   *zap.Logger
}

// Resolver turns a bearer credential into a Session. Backend session JWTs
// are validated locally; anything else is treated as a provider access
// token and validated remotely, matched against the claimed user id.
type Resolver struct {
	sessions *SessionIssuer
	identity IdentityValidator
	accounts AccountLookup
	logger   *zap.Logger
}

// NewResolver constructs a Resolver with validated dependencies.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("auth: session issuer required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("auth: identity validator required")
	}
	if cfg.Accounts == nil {
		return nil, errors.New("auth: account lookup required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sessions: cfg.Sessions,
		identity: cfg.Identity,
		accounts: cfg.Accounts,
		logger:   logger,
	}, nil
}

// Resolve authenticates the bearer credential and loads the account behind
// it. claimedID, when non-empty, must match the authenticated identity.
// requireAdmin rejects non-admin accounts with Unauthorized.
func (r *Resolver) Resolve(ctx context.Context, bearer, claimedID string, requireAdmin bool) (Session, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Session{}, fault.New(fault.KindUnauthorized, opResolve, "missing credential")
	}

	twitchUserID, err := r.subjectFor(ctx, bearer)
	if err != nil {
		return Session{}, err
	}

	if claimed := strings.TrimSpace(claimedID); claimed != "" && claimed != twitchUserID {
		return Session{}, fault.New(fault.KindUnauthorized, opResolve, "credential does not match claimed user")
	}

	account, err := r.accounts.Lookup(ctx, twitchUserID)
	if err != nil {
		if fault.IsKind(err, fault.KindNotFound) {
			return Session{}, fault.New(fault.KindUnauthorized, opResolve, "unknown user")
		}
		return Session{}, err
	}

	if requireAdmin && !account.IsAdmin {
		return Session{}, fault.New(fault.KindUnauthorized, opResolve, "incorrect user data")
	}

	return Session{
		TwitchUserID: account.TwitchUserID,
		Username:     account.Username,
		IsAdmin:      account.IsAdmin,
	}, nil
}

func (r *Resolver) subjectFor(ctx context.Context, bearer string) (string, error) {
	claims, err := r.sessions.Validate(bearer)
	if err == nil {
		return claims.Subject, nil
	}
	if errors.Is(err, ErrExpiredSessionToken) {
		return "", fault.Wrap(fault.KindUnauthorized, opResolve, "session expired", err)
	}

	identity, remoteErr := r.identity.Validate(ctx, bearer)
	if remoteErr != nil {
		r.logger.Warn("credential validation failed", zap.Error(remoteErr))
		return "", fault.Wrap(fault.KindUnauthorized, opResolve, "invalid or expired token", remoteErr)
	}
	return identity.UserID, nil
}
