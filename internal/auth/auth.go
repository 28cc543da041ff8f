package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GuestTokenHeader carries the cart identity of an anonymous shopper.
const GuestTokenHeader = "Guest-Token"

// SessionCache remembers which user a bearer token belongs to.
type SessionCache interface {
	CacheSession(ctx context.Context, token string, userID int64, ttl time.Duration) error
	CachedSession(ctx context.Context, token string) (int64, bool, error)
	EvictSession(ctx context.Context, token string) error
}

// Resolver turns bearer tokens into profiles. Sessions are issued elsewhere;
// this side only reads them.
type Resolver struct {
	repo   store.Repository
	cache  SessionCache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewResolver creates a resolver. A cached token stays valid for up to ttl
// even if the session row expires sooner.
func NewResolver(repo store.Repository, cache SessionCache, ttl time.Duration) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Resolve returns the profile behind token, or ErrUnauthorized.
func (r *Resolver) Resolve(ctx context.Context, token string) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.Resolve")
	defer span.End()

	if token == "" {
		return nil, unauthorized("missing token")
	}

	userID, cached := r.lookupCache(ctx, token)

	var profile *models.Profile
	err := r.repo.View(ctx, func(tx store.Tx) error {
		if !cached {
			var err error
			if userID, err = tx.GetSessionUser(ctx, token, r.now()); err != nil {
				return err
			}
		}
		var err error
		profile, err = tx.GetProfile(ctx, userID)
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		if cached {
			r.evict(ctx, token)
		}
		return nil, unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, err
	}

	if !cached && r.cache != nil {
		if err := r.cache.CacheSession(ctx, token, userID, r.ttl); err != nil {
			r.logger.Warn("Failed to cache session", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return profile, nil
}

func (r *Resolver) lookupCache(ctx context.Context, token string) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	userID, ok, err := r.cache.CachedSession(ctx, token)
	if err != nil {
		r.logger.Warn("Session cache unavailable", zap.Error(err))
		return 0, false
	}
	return userID, ok
}

// evict drops a cached token whose user no longer resolves.
func (r *Resolver) evict(ctx context.Context, token string) {
	if err := r.cache.EvictSession(ctx, token); err != nil {
		r.logger.Warn("Failed to evict cached session", zap.Error(err))
	}
}

// ParseAuthorization extracts the token from "Bearer <t>" or "Token <t>".
func ParseAuthorization(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
	default:
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// NewGuestToken issues an opaque guest cart identity.
func NewGuestToken() string {
	return uuid.NewString()
}

func unauthorized(msg string) error {
	return apperr.New("auth.Resolve", apperr.ErrUnauthorized, msg)
}
