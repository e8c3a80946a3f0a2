package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// pausingUserRepo holds the first List call after reading until released
type pausingUserRepo struct {
	*memUserRepo
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r *pausingUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	users, err := r.memUserRepo.List(ctx)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return users, err
}

func TestDirectoryDropsLoadsOverlappingInvalidate(t *testing.T) {
	ctx := context.Background()
	repo := &pausingUserRepo{memUserRepo: newMemUserRepo(), read: make(chan struct{}), release: make(chan struct{})}
	repo.Create(ctx, &domain.User{ID: "u1", Username: "steve", CreatedAt: time.Now()})
	d := NewDirectory(repo, nil)

	stale := make(chan map[string]string)
	go func() { stale <- d.Labels(ctx) }()
	<-repo.read

	// A user is created while the first load is in flight
	repo.Create(ctx, &domain.User{ID: "u2", Username: "jamie", CreatedAt: time.Now()})
	d.Invalidate()
	close(repo.release)

	if labels := <-stale; LabelFrom(labels, "u2") != domain.UnknownUserLabel {
		t.Fatalf("in-flight load should predate the new user, got %v", labels)
	}
	if got := d.Label(ctx, "u2"); got != "jamie" {
		t.Fatalf("stale labels were cached over the invalidation, got %q", got)
	}
}

func TestDirectoryCachesLabels(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	repo.Create(ctx, &domain.User{ID: "u1", Username: "steve", CreatedAt: time.Now()})
	d := NewDirectory(repo, nil)

	if got := d.Label(ctx, "u1"); got != "steve" {
		t.Fatalf("expected steve, got %q", got)
	}
	repo.Delete(ctx, "u1")
	if got := d.Label(ctx, "u1"); got != "steve" {
		t.Fatalf("labels should be served from cache until invalidated, got %q", got)
	}
	d.Invalidate()
	if got := d.Label(ctx, "u1"); got != domain.UnknownUserLabel {
		t.Fatalf("expected fallback label after invalidate, got %q", got)
	}
}
