package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RecordResult tells the caller whether a click produced an event.
type RecordResult int

const (
	RecordSkipped RecordResult = iota
	RecordRecorded
)

// Deduper answers "is this the first sighting of key inside window". The
// answer must be atomic under concurrent callers. Release gives a claim
// back when the claimed work could not be completed.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduper implements Deduper with SET NX and the window as TTL.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, 1, window).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}

// EventPublisher hands a recorded click to the ingestion stream.
type EventPublisher interface {
	Publish(event model.ClickEvent) error
}

// JetStreamPublisher publishes click events onto the durable stream.
type JetStreamPublisher struct {
	js nats.JetStreamContext
}

func NewJetStreamPublisher(js nats.JetStreamContext) *JetStreamPublisher {
	return &JetStreamPublisher{js: js}
}

func (p *JetStreamPublisher) Publish(event model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(model.ClickStreamSubject, data)
	return err
}

// EventRecorder accepts an allowed click, suppresses repeats inside the
// dedup window, and publishes a ClickEvent for asynchronous ingestion.
// It never blocks the redirect path on aggregate maintenance; the
// consumer and the periodic sweep own everything downstream.
type EventRecorder struct {
	logger      *zap.Logger
	dedup       Deduper
	publisher   EventPublisher
	dedupWindow time.Duration
}

// NewEventRecorder wires a recorder. A zero dedupWindow falls back to the
// 5-minute reference window.
func NewEventRecorder(logger *zap.Logger, dedup Deduper, publisher EventPublisher, dedupWindow time.Duration) *EventRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Minute
	}
	return &EventRecorder{
		logger:      logger,
		dedup:       dedup,
		publisher:   publisher,
		dedupWindow: dedupWindow,
	}
}

// Record persists at most one event per (link, visitor) inside the dedup
// window. Two concurrent calls may both pass the gate when Redis is
// unreachable; that overcount is benign and corrected by the next
// unique-count recomputation.
func (r *EventRecorder) Record(ctx context.Context, linkID string, rctx model.RequestContext) (RecordResult, error) {
	if rctx.SkipTracking {
		return RecordSkipped, nil
	}

	visitor := HashVisitor(rctx.IP, rctx.UserAgent, rctx.Now)

	key := fmt.Sprintf("dedup:%s:%s", linkID, visitor)
	first, err := r.dedup.FirstSeen(ctx, key, r.dedupWindow)
	claimed := err == nil && first
	if err != nil {
		// Fail open: a dedup outage must not drop clicks.
		r.logger.Warn("dedup store unavailable, recording anyway",
			zap.String("link_id", linkID), zap.Error(err))
		first = true
	}
	if !first {
		return RecordSkipped, nil
	}

	event := model.ClickEvent{
		ID:           uuid.New().String(),
		LinkID:       linkID,
		VisitorHash:  visitor,
		Device:       rctx.Device,
		ReferrerHost: referrerHost(rctx.Referrer),
		Country:      rctx.Country,
		Source:       rctx.Source,
		Bot:          rctx.Bot,
		Processed:    false,
		Timestamp:    rctx.Now,
	}

	if err := r.publisher.Publish(event); err != nil {
		// The event is lost; holding the claim would also suppress this
		// visitor's retries for the rest of the window.
		if claimed {
			if relErr := r.dedup.Release(ctx, key); relErr != nil {
				r.logger.Warn("failed to release dedup claim",
					zap.String("link_id", linkID), zap.Error(relErr))
			}
		}
		return RecordSkipped, fmt.Errorf("publish click event: %w", err)
	}
	return RecordRecorded, nil
}

// HashVisitor derives the privacy-safe visitor identifier: a SHA-256 of
// IP, user agent and a daily salt, truncated to 16 bytes of hex. The
// daily salt caps how long the identifier stays linkable.
func HashVisitor(ip, userAgent string, now time.Time) string {
	h := sha256.New()
	h.Write([]byte(ip))
	h.Write([]byte{'|'})
	h.Write([]byte(userAgent))
	h.Write([]byte{'|'})
	h.Write([]byte(now.UTC().Format("2006-01-02")))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func referrerHost(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
