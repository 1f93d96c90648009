package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	apprepository "github.com/hoplink/hoplink/internal/app/repository"
	infraprom "github.com/hoplink/hoplink/internal/infra/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MonthMarker remembers which calendar month the last monthly reset ran
// for, so the reset fires exactly once per rollover.
type MonthMarker interface {
	Current(ctx context.Context) (string, error)
	Set(ctx context.Context, month string) error
}

const monthMarkerKey = "rollup:month"

// RedisMonthMarker stores the marker in Redis.
type RedisMonthMarker struct {
	client *redis.Client
}

func NewRedisMonthMarker(client *redis.Client) *RedisMonthMarker {
	return &RedisMonthMarker{client: client}
}

func (m *RedisMonthMarker) Current(ctx context.Context) (string, error) {
	val, err := m.client.Get(ctx, monthMarkerKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (m *RedisMonthMarker) Set(ctx context.Context, month string) error {
	return m.client.Set(ctx, monthMarkerKey, month, 0).Err()
}

// Enqueuer hands link IDs to the reconcile pool. Run routes a one-off
// recompute through the link's shard and waits for it.
type Enqueuer interface {
	Enqueue(ctx context.Context, linkID string) error
	Run(ctx context.Context, linkID string) (model.RollupCounters, error)
}

// Synchronizer rebuilds RollupCounters from the raw click log and
// propagates recomputed usage to the owning user, team and domain
// ledgers. It always recomputes from scratch — counters are a cache,
// never a running total — which makes every operation here idempotent
// and safe under at-least-once signalling.
type Synchronizer struct {
	logger *zap.Logger
	links  apprepository.LinkRepository
	events apprepository.ClickEventRepository
	stats  apprepository.StatsRepository
	usage  apprepository.UsageRepository
	marker MonthMarker
	queue  Enqueuer

	retention time.Duration
	batchSize int
	now       func() time.Time
}

// SynchronizerConfig carries the sweep knobs.
type SynchronizerConfig struct {
	Retention time.Duration
	BatchSize int
}

// NewSynchronizer wires a synchronizer. AttachQueue must be called before
// ReconcileAll if sweeps should go through the worker pool.
func NewSynchronizer(
	logger *zap.Logger,
	links apprepository.LinkRepository,
	events apprepository.ClickEventRepository,
	stats apprepository.StatsRepository,
	usage apprepository.UsageRepository,
	marker MonthMarker,
	cfg SynchronizerConfig,
) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	return &Synchronizer{
		logger:    logger,
		links:     links,
		events:    events,
		stats:     stats,
		usage:     usage,
		marker:    marker,
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// AttachQueue routes full sweeps through the pool so all reconciles for
// one link stay on one worker.
func (s *Synchronizer) AttachQueue(queue Enqueuer) {
	s.queue = queue
}

// Reconcile recomputes one link's counters from non-bot raw events and
// writes the snapshot back. The caller (the pool worker owning this
// link's shard) is the sole writer of that snapshot during the run.
func (s *Synchronizer) Reconcile(ctx context.Context, linkID string) (model.RollupCounters, error) {
	started := s.now()

	stats, err := s.stats.LinkStats(ctx, linkID, started)
	if err != nil {
		return model.RollupCounters{}, fmt.Errorf("link stats: %w", err)
	}

	updated := started
	counters := model.RollupCounters{
		Total:       stats.Total,
		Unique:      stats.Unique,
		Today:       stats.Today,
		Week:        stats.Week,
		Month:       stats.Month,
		LastUpdated: &updated,
	}

	if err := s.links.UpdateCounters(ctx, linkID, counters); err != nil {
		return model.RollupCounters{}, fmt.Errorf("write counters: %w", err)
	}

	if _, err := s.events.MarkProcessed(ctx, linkID, started); err != nil {
		// Non-fatal: unprocessed events are re-read next run; the
		// recompute already covered them.
		s.logger.Warn("failed to flag processed events",
			zap.String("link_id", linkID), zap.Error(err))
	}

	s.propagateOwners(ctx, linkID)

	infraprom.ReconcileDuration.Observe(time.Since(started).Seconds())
	return counters, nil
}

// ReconcileOnDemand serializes an ad-hoc recompute with the stream-driven
// ones by running it on the link's worker shard. Only the shard worker
// ever writes a link's snapshot, so a direct Reconcile call from another
// goroutine would break that discipline. Without an attached queue the
// recompute runs inline.
func (s *Synchronizer) ReconcileOnDemand(ctx context.Context, linkID string) (model.RollupCounters, error) {
	if s.queue != nil {
		return s.queue.Run(ctx, linkID)
	}
	return s.Reconcile(ctx, linkID)
}

// propagateOwners pushes recomputed absolute usage to each owning
// entity's ledger row. Sums always come from the owned links, never from
// a cached delta, so drift cannot compound across cycles.
func (s *Synchronizer) propagateOwners(ctx context.Context, linkID string) {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		s.logger.Warn("owner propagation skipped",
			zap.String("link_id", linkID), zap.Error(err))
		return
	}

	type target struct {
		id     *string
		kind   model.OwnerKind
		column string
	}
	targets := []target{
		{link.OwnerUserID, model.OwnerUser, apprepository.OwnerColumnUser},
		{link.OwnerTeamID, model.OwnerTeam, apprepository.OwnerColumnTeam},
		{link.DomainID, model.OwnerDomain, apprepository.OwnerColumnDomain},
	}

	for _, t := range targets {
		if t.id == nil || *t.id == "" {
			continue
		}
		stats, err := s.stats.OwnerStats(ctx, t.column, *t.id)
		if err != nil {
			s.logger.Warn("owner usage recompute failed",
				zap.String("owner_id", *t.id),
				zap.String("kind", string(t.kind)),
				zap.Error(err))
			continue
		}
		if err := s.usage.Set(ctx, model.OwnerUsage{
			OwnerID:     *t.id,
			Kind:        t.kind,
			TotalClicks: stats.TotalClicks,
			MonthClicks: stats.MonthClicks,
			LinkCount:   stats.LinkCount,
		}); err != nil {
			s.logger.Warn("owner usage write failed",
				zap.String("owner_id", *t.id),
				zap.String("kind", string(t.kind)),
				zap.Error(err))
		}
	}
}

// ReconcileAll walks every live link in bounded batches and feeds them to
// the reconcile pool. It is the retry path for any signal dropped on the
// fast path.
func (s *Synchronizer) ReconcileAll(ctx context.Context) error {
	after := ""
	for {
		ids, err := s.links.IDsAfter(ctx, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if s.queue != nil {
				if err := s.queue.Enqueue(ctx, id); err != nil {
					return err
				}
			} else if _, err := s.Reconcile(ctx, id); err != nil {
				s.logger.Error("sweep reconcile failed",
					zap.String("link_id", id), zap.Error(err))
			}
		}
		after = ids[len(ids)-1]
	}
}

// ResetMonthlyIfRolled zeroes month counters once per calendar-month
// boundary. This is an explicit reset pass, not a rolling-window expiry:
// the ledger's month figure is a quota counter, not a trailing window.
func (s *Synchronizer) ResetMonthlyIfRolled(ctx context.Context) error {
	if s.marker == nil {
		return nil
	}
	month := s.now().UTC().Format("2006-01")

	last, err := s.marker.Current(ctx)
	if err != nil {
		return fmt.Errorf("read month marker: %w", err)
	}
	if last == month {
		return nil
	}

	if err := s.links.ResetMonthly(ctx); err != nil {
		return fmt.Errorf("reset link month counters: %w", err)
	}
	if err := s.usage.ResetMonthly(ctx); err != nil {
		return fmt.Errorf("reset usage month counters: %w", err)
	}
	if err := s.marker.Set(ctx, month); err != nil {
		return fmt.Errorf("write month marker: %w", err)
	}

	s.logger.Info("monthly counters reset", zap.String("month", month))
	return nil
}

// SweepRetention drops processed events older than the horizon.
func (s *Synchronizer) SweepRetention(ctx context.Context) error {
	horizon := s.now().Add(-s.retention)
	deleted, err := s.events.DeleteProcessedBefore(ctx, horizon)
	if err != nil {
		return fmt.Errorf("retention delete: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("retention sweep removed events",
			zap.Int64("count", deleted),
			zap.Time("horizon", horizon))
	}
	return nil
}
