package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/pkg/cache"
)

const directoryTTL = 30 * time.Second

// Directory resolves user IDs to display names. Unknown or deleted users
// resolve to domain.UnknownUserLabel so reads never fail on dangling IDs.
type Directory struct {
	users  domain.UserRepository
	labels *cache.Cache[map[string]string]
	logger *slog.Logger

	// generation counts invalidations; a load that saw an older one is not cached
	mu         sync.Mutex
	generation uint64
}

// NewDirectory creates a directory over users
func NewDirectory(users domain.UserRepository, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{users: users, labels: cache.New[map[string]string](), logger: logger}
}

// Labels returns the id -> username map of all current users
func (d *Directory) Labels(ctx context.Context) map[string]string {
	if labels, ok := d.labels.Get("all"); ok {
		return labels
	}
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	users, err := d.users.List(ctx)
	if err != nil {
		d.logger.Warn("failed to load user labels", slog.String("error", err.Error()))
		return map[string]string{}
	}
	labels := make(map[string]string, len(users))
	for _, u := range users {
		labels[u.ID] = u.Username
	}
	d.mu.Lock()
	if d.generation == gen {
		d.labels.Set("all", labels, directoryTTL)
	}
	d.mu.Unlock()
	return labels
}

// Label returns the username of id, or the fallback label
func (d *Directory) Label(ctx context.Context, id string) string {
	return LabelFrom(d.Labels(ctx), id)
}

// Invalidate drops cached labels after users change
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.generation++
	d.labels.Clear()
	d.mu.Unlock()
}

// LabelFrom looks id up in labels with the fallback label
func LabelFrom(labels map[string]string, id string) string {
	if name, ok := labels[id]; ok && name != "" {
		return name
	}
	return domain.UnknownUserLabel
}
