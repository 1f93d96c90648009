package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
)

// mockLinkRepository is a function-field mock in the style of the rest of
// the service tests; unset fields return not-found / nil.
type mockLinkRepository struct {
	createFn             func(ctx context.Context, link *model.Link) error
	getByIdentifierFn    func(ctx context.Context, identifier string) (*model.Link, error)
	getByCodeFn          func(ctx context.Context, code string) (*model.Link, error)
	getByIDFn            func(ctx context.Context, id string) (*model.Link, error)
	listFn               func(ctx context.Context, limit, offset int) ([]model.Link, error)
	updateFn             func(ctx context.Context, link *model.Link) error
	updateCountersFn     func(ctx context.Context, linkID string, counters model.RollupCounters) error
	updateLastResolvedFn func(ctx context.Context, linkID string, at time.Time) error
	softDeleteFn         func(ctx context.Context, code string) error
	hardDeleteFn         func(ctx context.Context, code string) error
	identifiersFn        func(ctx context.Context) ([]string, error)
	idsAfterFn           func(ctx context.Context, afterID string, limit int) ([]string, error)
	resetMonthlyFn       func(ctx context.Context) error
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.Link, error) {
	if m.getByIdentifierFn != nil {
		return m.getByIdentifierFn(ctx, identifier)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) List(ctx context.Context, limit, offset int) ([]model.Link, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) UpdateCounters(ctx context.Context, linkID string, counters model.RollupCounters) error {
	if m.updateCountersFn != nil {
		return m.updateCountersFn(ctx, linkID, counters)
	}
	return nil
}

func (m *mockLinkRepository) UpdateLastResolved(ctx context.Context, linkID string, at time.Time) error {
	if m.updateLastResolvedFn != nil {
		return m.updateLastResolvedFn(ctx, linkID, at)
	}
	return nil
}

func (m *mockLinkRepository) SoftDelete(ctx context.Context, code string) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, code)
	}
	return nil
}

func (m *mockLinkRepository) HardDelete(ctx context.Context, code string) error {
	if m.hardDeleteFn != nil {
		return m.hardDeleteFn(ctx, code)
	}
	return nil
}

func (m *mockLinkRepository) Identifiers(ctx context.Context) ([]string, error) {
	if m.identifiersFn != nil {
		return m.identifiersFn(ctx)
	}
	return nil, nil
}

func (m *mockLinkRepository) IDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	if m.idsAfterFn != nil {
		return m.idsAfterFn(ctx, afterID, limit)
	}
	return nil, nil
}

func (m *mockLinkRepository) ResetMonthly(ctx context.Context) error {
	if m.resetMonthlyFn != nil {
		return m.resetMonthlyFn(ctx)
	}
	return nil
}

// memoryDeduper is an atomic in-memory Deduper for concurrency tests.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	err  error
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]time.Time)}
}

func (d *memoryDeduper) FirstSeen(_ context.Context, key string, window time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if until, ok := d.seen[key]; ok && now.Before(until) {
		return false, nil
	}
	d.seen[key] = now.Add(window)
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// memoryPublisher collects published events.
type memoryPublisher struct {
	mu     sync.Mutex
	events []model.ClickEvent
	err    error
}

func (p *memoryPublisher) Publish(event model.ClickEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memoryPublisher) all() []model.ClickEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ClickEvent, len(p.events))
	copy(out, p.events)
	return out
}

// memoryEventLog backs the fake stats and event repositories with one
// shared in-memory click log so reconciliation tests read what recording
// wrote.
type memoryEventLog struct {
	mu     sync.Mutex
	events []model.ClickEvent
}

func (l *memoryEventLog) add(events ...model.ClickEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
}

func (l *memoryEventLog) Create(_ context.Context, event *model.ClickEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.ID == event.ID {
			return repository.ErrDuplicateEvent
		}
	}
	l.events = append(l.events, *event)
	return nil
}

func (l *memoryEventLog) MarkProcessed(_ context.Context, linkID string, upTo time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for i := range l.events {
		e := &l.events[i]
		if e.LinkID == linkID && !e.Processed && !e.Timestamp.After(upTo) {
			e.Processed = true
			n++
		}
	}
	return n, nil
}

func (l *memoryEventLog) DeleteProcessedBefore(_ context.Context, horizon time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	var n int64
	for _, e := range l.events {
		if e.Processed && e.Timestamp.Before(horizon) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return n, nil
}

func (l *memoryEventLog) DeleteByLink(_ context.Context, linkID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	var n int64
	for _, e := range l.events {
		if e.LinkID == linkID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return n, nil
}

// linkStats recomputes the aggregate the way the SQL scan does: non-bot
// events only, windows inclusive of their start.
func (l *memoryEventLog) linkStats(linkID string, now time.Time) repository.LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := repository.StartOfDay(now)
	week := repository.StartOfWeek(now)
	month := repository.StartOfMonth(now)

	var stats repository.LinkStats
	visitors := map[string]struct{}{}
	for _, e := range l.events {
		if e.LinkID != linkID || e.Bot {
			continue
		}
		stats.Total++
		visitors[e.VisitorHash] = struct{}{}
		if !e.Timestamp.Before(day) {
			stats.Today++
		}
		if !e.Timestamp.Before(week) {
			stats.Week++
		}
		if !e.Timestamp.Before(month) {
			stats.Month++
		}
	}
	stats.Unique = int64(len(visitors))
	return stats
}

// fakeStatsRepository serves link stats from the shared log and owner
// stats from a fixed link set.
type fakeStatsRepository struct {
	log   *memoryEventLog
	links map[string]*model.Link
}

func (f *fakeStatsRepository) LinkStats(_ context.Context, linkID string, now time.Time) (repository.LinkStats, error) {
	return f.log.linkStats(linkID, now), nil
}

func (f *fakeStatsRepository) OwnerStats(_ context.Context, ownerColumn, ownerID string) (repository.OwnerStats, error) {
	var stats repository.OwnerStats
	ids := make([]string, 0, len(f.links))
	for id := range f.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		link := f.links[id]
		if link.Deleted {
			continue
		}
		var ref *string
		switch ownerColumn {
		case repository.OwnerColumnUser:
			ref = link.OwnerUserID
		case repository.OwnerColumnTeam:
			ref = link.OwnerTeamID
		case repository.OwnerColumnDomain:
			ref = link.DomainID
		}
		if ref == nil || *ref != ownerID {
			continue
		}
		stats.TotalClicks += link.Rollup.Total
		stats.MonthClicks += link.Rollup.Month
		stats.LinkCount++
	}
	return stats, nil
}

// fakeUsageRepository records absolute ledger writes.
type fakeUsageRepository struct {
	mu     sync.Mutex
	rows   map[string]model.OwnerUsage
	resets int
}

func newFakeUsageRepository() *fakeUsageRepository {
	return &fakeUsageRepository{rows: make(map[string]model.OwnerUsage)}
}

func (f *fakeUsageRepository) Set(_ context.Context, usage model.OwnerUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[usage.OwnerID+"/"+string(usage.Kind)] = usage
	return nil
}

func (f *fakeUsageRepository) Get(_ context.Context, ownerID string, kind model.OwnerKind) (*model.OwnerUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[ownerID+"/"+string(kind)]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return &u, nil
}

func (f *fakeUsageRepository) ResetMonthly(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	for k, u := range f.rows {
		u.MonthClicks = 0
		f.rows[k] = u
	}
	return nil
}

// fakeMonthMarker is an in-memory MonthMarker.
type fakeMonthMarker struct {
	month string
}

func (f *fakeMonthMarker) Current(_ context.Context) (string, error) { return f.month, nil }
func (f *fakeMonthMarker) Set(_ context.Context, month string) error {
	f.month = month
	return nil
}
