package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
)

// syncHarness wires a Synchronizer against one shared in-memory click
// log and link table, with a pinned clock.
type syncHarness struct {
	sync  *Synchronizer
	log   *memoryEventLog
	links map[string]*model.Link
	usage *fakeUsageRepository
	mark  *fakeMonthMarker
	now   time.Time
}

func newSyncHarness(t *testing.T, links ...*model.Link) *syncHarness {
	t.Helper()

	h := &syncHarness{
		log:   &memoryEventLog{},
		links: map[string]*model.Link{},
		usage: newFakeUsageRepository(),
		mark:  &fakeMonthMarker{},
		now:   time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC),
	}
	for _, l := range links {
		h.links[l.ID] = l
	}

	repo := &mockLinkRepository{
		getByIDFn: func(_ context.Context, id string) (*model.Link, error) {
			link, ok := h.links[id]
			if !ok {
				return nil, repository.ErrLinkNotFound
			}
			copied := *link
			return &copied, nil
		},
		updateCountersFn: func(_ context.Context, linkID string, counters model.RollupCounters) error {
			link, ok := h.links[linkID]
			if !ok {
				return repository.ErrLinkNotFound
			}
			link.Rollup = counters
			return nil
		},
		idsAfterFn: func(_ context.Context, afterID string, limit int) ([]string, error) {
			var ids []string
			for id := range h.links {
				if id > afterID {
					ids = append(ids, id)
				}
			}
			if len(ids) > limit {
				ids = ids[:limit]
			}
			return ids, nil
		},
		resetMonthlyFn: func(_ context.Context) error {
			for _, l := range h.links {
				l.Rollup.Month = 0
			}
			return nil
		},
	}

	h.sync = NewSynchronizer(nil, repo, h.log,
		&fakeStatsRepository{log: h.log, links: h.links},
		h.usage, h.mark,
		SynchronizerConfig{Retention: 30 * 24 * time.Hour, BatchSize: 10},
	)
	h.sync.now = func() time.Time { return h.now }
	h.mark.month = h.now.UTC().Format("2006-01")
	return h
}

func (h *syncHarness) event(linkID, visitor string, at time.Time, bot bool) model.ClickEvent {
	return model.ClickEvent{
		ID:          fmt.Sprintf("ev-%s-%s-%d", linkID, visitor, at.UnixNano()),
		LinkID:      linkID,
		VisitorHash: visitor,
		Timestamp:   at,
		Bot:         bot,
	}
}

func TestReconcile_RecomputesAllWindows(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "l1code", Active: true}
	h := newSyncHarness(t, link)

	h.log.add(
		// Two months ago: lifetime only.
		h.event("l1", "v1", h.now.AddDate(0, -2, 0), false),
		// Last week (Aug 5): this-month only.
		h.event("l1", "v1", h.now.AddDate(0, 0, -12), false),
		// Same week (Monday is the 17th; Saturday 15th is previous week).
		h.event("l1", "v2", time.Date(2026, 8, 17, 1, 0, 0, 0, time.UTC), false),
		// Today, second visit by v2.
		h.event("l1", "v2", h.now.Add(-time.Hour), false),
		// Bot traffic is excluded entirely.
		h.event("l1", "bot1", h.now, true),
	)

	counters, err := h.sync.Reconcile(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if counters.Total != 4 {
		t.Errorf("total: want 4, got %d", counters.Total)
	}
	if counters.Unique != 2 {
		t.Errorf("unique: want 2, got %d", counters.Unique)
	}
	if counters.Today != 2 {
		t.Errorf("today: want 2, got %d", counters.Today)
	}
	if counters.Week != 2 {
		t.Errorf("week: want 2, got %d", counters.Week)
	}
	if counters.Month != 3 {
		t.Errorf("month: want 3, got %d", counters.Month)
	}
	if counters.LastUpdated == nil || !counters.LastUpdated.Equal(h.now) {
		t.Errorf("lastUpdated not stamped: %v", counters.LastUpdated)
	}
	if link.Rollup.Total != 4 {
		t.Errorf("counters not written back to link, got %+v", link.Rollup)
	}
}

func TestReconcile_IdempotentWithoutNewEvents(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "l1code", Active: true}
	h := newSyncHarness(t, link)
	h.log.add(
		h.event("l1", "v1", h.now.Add(-time.Hour), false),
		h.event("l1", "v2", h.now.Add(-2*time.Hour), false),
	)

	first, err := h.sync.Reconcile(context.Background(), "l1")
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := h.sync.Reconcile(context.Background(), "l1")
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	first.LastUpdated, second.LastUpdated = nil, nil
	if first != second {
		t.Fatalf("reconcile must be idempotent: %+v vs %+v", first, second)
	}
}

func TestReconcile_UniqueCountsDistinctVisitors(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "l1code", Active: true}
	h := newSyncHarness(t, link)

	// 50 visitors, duplicate events surviving a racy dedup gate.
	for v := 0; v < 50; v++ {
		visitor := fmt.Sprintf("visitor-%02d", v)
		h.log.add(h.event("l1", visitor, h.now.Add(-time.Minute), false))
		if v%10 == 0 {
			h.log.add(h.event("l1", visitor, h.now.Add(-30*time.Second), false))
		}
	}

	counters, err := h.sync.Reconcile(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if counters.Unique != 50 {
		t.Fatalf("unique: want 50, got %d", counters.Unique)
	}
}

func TestReconcile_MarksEventsProcessed(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "l1code", Active: true}
	h := newSyncHarness(t, link)
	h.log.add(h.event("l1", "v1", h.now.Add(-time.Hour), false))

	if _, err := h.sync.Reconcile(context.Background(), "l1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	for _, e := range h.log.events {
		if !e.Processed {
			t.Fatalf("event %s not flagged processed", e.ID)
		}
	}
}

func TestReconcile_PropagatesAbsoluteOwnerUsage(t *testing.T) {
	user := "user-1"
	l1 := &model.Link{ID: "l1", Code: "c1", Active: true, OwnerUserID: &user}
	l2 := &model.Link{ID: "l2", Code: "c2", Active: true, OwnerUserID: &user,
		Rollup: model.RollupCounters{Total: 7, Month: 3}}
	h := newSyncHarness(t, l1, l2)

	h.log.add(
		h.event("l1", "v1", h.now.Add(-time.Hour), false),
		h.event("l1", "v2", h.now.Add(-time.Hour), false),
	)

	// Reconcile twice: the ledger must hold the recomputed sum, not a
	// doubled delta.
	for i := 0; i < 2; i++ {
		if _, err := h.sync.Reconcile(context.Background(), "l1"); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
	}

	usage, err := h.usage.Get(context.Background(), user, model.OwnerUser)
	if err != nil {
		t.Fatalf("usage row missing: %v", err)
	}
	if usage.TotalClicks != 9 { // 2 recomputed on l1 + 7 cached on l2
		t.Errorf("total clicks: want 9, got %d", usage.TotalClicks)
	}
	if usage.LinkCount != 2 {
		t.Errorf("link count: want 2, got %d", usage.LinkCount)
	}
}

func TestReconcileAll_CoversEveryLink(t *testing.T) {
	l1 := &model.Link{ID: "l1", Code: "c1", Active: true}
	l2 := &model.Link{ID: "l2", Code: "c2", Active: true}
	l3 := &model.Link{ID: "l3", Code: "c3", Active: true}
	h := newSyncHarness(t, l1, l2, l3)

	h.log.add(
		h.event("l1", "v1", h.now.Add(-time.Minute), false),
		h.event("l2", "v1", h.now.Add(-time.Minute), false),
		h.event("l3", "v1", h.now.Add(-time.Minute), false),
	)

	if err := h.sync.ReconcileAll(context.Background()); err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}

	for _, l := range []*model.Link{l1, l2, l3} {
		if l.Rollup.Total != 1 {
			t.Errorf("link %s not reconciled: %+v", l.ID, l.Rollup)
		}
	}
}

func TestResetMonthly_FiresOncePerRollover(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "c1", Active: true,
		Rollup: model.RollupCounters{Month: 42}}
	h := newSyncHarness(t, link)

	// Same month: no-op.
	if err := h.sync.ResetMonthlyIfRolled(context.Background()); err != nil {
		t.Fatalf("ResetMonthlyIfRolled: %v", err)
	}
	if link.Rollup.Month != 42 {
		t.Fatal("reset must not fire inside the same month")
	}

	// Cross the boundary.
	h.now = time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	if err := h.sync.ResetMonthlyIfRolled(context.Background()); err != nil {
		t.Fatalf("ResetMonthlyIfRolled: %v", err)
	}
	if link.Rollup.Month != 0 {
		t.Fatal("month counter not reset on rollover")
	}
	if h.usage.resets != 1 {
		t.Fatalf("ledger reset count: want 1, got %d", h.usage.resets)
	}

	// Second call in the new month: no further reset.
	if err := h.sync.ResetMonthlyIfRolled(context.Background()); err != nil {
		t.Fatalf("ResetMonthlyIfRolled: %v", err)
	}
	if h.usage.resets != 1 {
		t.Fatal("reset fired twice for one rollover")
	}
}

func TestSweepRetention_DropsOldProcessedEventsOnly(t *testing.T) {
	link := &model.Link{ID: "l1", Code: "c1", Active: true}
	h := newSyncHarness(t, link)

	old := h.event("l1", "v1", h.now.AddDate(0, -2, 0), false)
	old.Processed = true
	oldUnprocessed := h.event("l1", "v2", h.now.AddDate(0, -2, 0), false)
	fresh := h.event("l1", "v3", h.now.Add(-time.Hour), false)
	fresh.Processed = true
	h.log.add(old, oldUnprocessed, fresh)

	if err := h.sync.SweepRetention(context.Background()); err != nil {
		t.Fatalf("SweepRetention: %v", err)
	}

	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	if len(h.log.events) != 2 {
		t.Fatalf("expected 2 surviving events, got %d", len(h.log.events))
	}
	for _, e := range h.log.events {
		if e.ID == old.ID {
			t.Fatal("old processed event should have been deleted")
		}
	}
}
