package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
	"github.com/aryan0dhankhar/farmorders/pkg/cache"
)

// Store keeps revocation markers until they expire. The Redis client
// implements it so every instance sees the same sign-outs.
type Store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// List records signed-out tokens and deleted accounts. A deleted account
// keeps a cutoff; tokens issued at or before it are rejected.
type List struct {
	store  Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewList creates a revocation list over store. ttl is the session token
// lifetime, after which every cutoff is moot.
func NewList(store Store, prefix string, ttl time.Duration, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &List{store: store, prefix: prefix, ttl: ttl, now: time.Now, logger: logger}
}

func (l *List) tokenKey(id string) string { return l.prefix + ":revoked:" + id }
func (l *List) userKey(id string) string  { return l.prefix + ":revoked-user:" + id }

// RevokeToken rejects the token id until expires
func (l *List) RevokeToken(ctx context.Context, id string, expires time.Time) error {
	ttl := expires.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.store.SetWithTTL(ctx, l.tokenKey(id), []byte("1"), ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUser rejects every token of userID issued up to now
func (l *List) RevokeUser(ctx context.Context, userID string) error {
	cutoff := strconv.FormatInt(l.now().Unix(), 10)
	if err := l.store.SetWithTTL(ctx, l.userKey(userID), []byte(cutoff), l.ttl); err != nil {
		return fmt.Errorf("revoke user %s: %w", userID, err)
	}
	l.logger.Info("sessions revoked", slog.String("user_id", userID))
	return nil
}

// Revoked reports whether claims belong to a signed-out token or a deleted account
func (l *List) Revoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	if claims.ID != "" {
		_, found, err := l.store.Get(ctx, l.tokenKey(claims.ID))
		if err != nil {
			return false, fmt.Errorf("check token: %w", err)
		}
		if found {
			return true, nil
		}
	}
	raw, found, err := l.store.Get(ctx, l.userKey(claims.UserID))
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if !found {
		return false, nil
	}
	cutoff, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || claims.IssuedAt == nil {
		return true, nil
	}
	return claims.IssuedAt.Unix() <= cutoff, nil
}

// Purge drops expired markers of an in-memory store; Redis expires its own
func (l *List) Purge() int {
	if p, ok := l.store.(interface{ Purge() int }); ok {
		return p.Purge()
	}
	return 0
}

// MemoryStore is a Store for a single instance
type MemoryStore struct {
	entries *cache.Cache[[]byte]
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: cache.New[[]byte]()}
}

func (m *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.entries.Set(key, value, ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.entries.Get(key)
	return v, ok, nil
}

// Purge removes expired markers
func (m *MemoryStore) Purge() int {
	return m.entries.Purge()
}
