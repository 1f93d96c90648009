package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
)

// overlapStatsRepository delays each stats scan and tracks how many are
// in flight, so a test can tell whether two reconciles of one link ever
// ran at the same time.
type overlapStatsRepository struct {
	mu        sync.Mutex
	active    int
	maxActive int
}

func (o *overlapStatsRepository) LinkStats(_ context.Context, _ string, _ time.Time) (repository.LinkStats, error) {
	o.mu.Lock()
	o.active++
	if o.active > o.maxActive {
		o.maxActive = o.active
	}
	o.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	o.mu.Lock()
	o.active--
	o.mu.Unlock()
	return repository.LinkStats{Total: 1}, nil
}

func (o *overlapStatsRepository) OwnerStats(_ context.Context, _, _ string) (repository.OwnerStats, error) {
	return repository.OwnerStats{}, nil
}

// An on-demand recompute must run on the link's shard worker, behind any
// stream-driven reconcile already queued for the same link, never beside
// it on the caller's goroutine.
func TestReconcileOnDemand_SerializesWithQueuedReconciles(t *testing.T) {
	stats := &overlapStatsRepository{}
	var writes int64
	repo := &mockLinkRepository{
		getByIDFn: func(_ context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id}, nil
		},
		updateCountersFn: func(_ context.Context, _ string, _ model.RollupCounters) error {
			atomic.AddInt64(&writes, 1)
			return nil
		},
	}

	syn := NewSynchronizer(nil, repo, &memoryEventLog{}, stats, newFakeUsageRepository(), nil, SynchronizerConfig{})
	pool := NewReconcilePool(nil, syn, 1, 8)
	syn.AttachQueue(pool)
	pool.Start()

	if !pool.TryEnqueue("link-1") {
		t.Fatal("TryEnqueue refused an empty queue")
	}
	counters, err := syn.ReconcileOnDemand(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("ReconcileOnDemand: %v", err)
	}
	if counters.Total != 1 {
		t.Fatalf("expected recomputed counters from the shard worker, got %+v", counters)
	}
	pool.Stop()

	if got := atomic.LoadInt64(&writes); got != 2 {
		t.Fatalf("expected 2 snapshot writes, got %d", got)
	}
	if stats.maxActive != 1 {
		t.Fatalf("reconciles of one link overlapped, %d in flight at peak", stats.maxActive)
	}
}

type staticReconciler struct {
	counters model.RollupCounters
	err      error
}

func (s *staticReconciler) Reconcile(context.Context, string) (model.RollupCounters, error) {
	return s.counters, s.err
}

func TestRun_PropagatesReconcileError(t *testing.T) {
	wantErr := errors.New("stats scan failed")
	pool := NewReconcilePool(nil, &staticReconciler{err: wantErr}, 2, 4)
	pool.Start()
	defer pool.Stop()

	if _, err := pool.Run(context.Background(), "link-1"); !errors.Is(err, wantErr) {
		t.Fatalf("expected the worker's error back, got %v", err)
	}
}

func TestRun_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Workers never started, so the queue accepts the job but nobody
	// replies; the wait must bail out on the dead context.
	pool := NewReconcilePool(nil, &staticReconciler{}, 1, 4)
	if _, err := pool.Run(ctx, "link-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
