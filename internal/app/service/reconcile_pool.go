package service

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/hoplink/hoplink/internal/app/model"
	infraprom "github.com/hoplink/hoplink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Reconciler recomputes one link's rollup counters from the event log.
type Reconciler interface {
	Reconcile(ctx context.Context, linkID string) (model.RollupCounters, error)
}

// reconcileJob is one unit of shard work. A nil reply channel means
// fire-and-forget; otherwise the worker reports the result back.
type reconcileJob struct {
	linkID string
	reply  chan reconcileReply
}

type reconcileReply struct {
	counters model.RollupCounters
	err      error
}

// ReconcilePool is the work queue between event ingestion and aggregate
// reconciliation. Link IDs are sharded onto per-worker channels by hash,
// so all reconciles for one link run on one worker in order: that is the
// single-writer-per-link discipline, enforced by sequencing rather than
// by a database lock. Different links reconcile in parallel.
type ReconcilePool struct {
	logger     *zap.Logger
	reconciler Reconciler
	queues     []chan reconcileJob
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewReconcilePool builds a pool of workerCount workers with queueSize
// slots each.
func NewReconcilePool(logger *zap.Logger, reconciler Reconciler, workerCount, queueSize int) *ReconcilePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	queues := make([]chan reconcileJob, workerCount)
	for i := range queues {
		queues[i] = make(chan reconcileJob, queueSize)
	}
	return &ReconcilePool{
		logger:     logger,
		reconciler: reconciler,
		queues:     queues,
	}
}

// Start launches the workers.
func (p *ReconcilePool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(i, q)
	}
	p.logger.Info("reconcile pool started", zap.Int("workers", len(p.queues)))
}

// Stop closes the queues and waits for in-flight reconciles to finish.
func (p *ReconcilePool) Stop() {
	p.closeOnce.Do(func() {
		for _, q := range p.queues {
			close(q)
		}
	})
	p.wg.Wait()
}

// TryEnqueue signals a reconcile without blocking. A false return means
// the shard is full; at-least-once delivery is still met because the
// periodic sweep revisits every link.
func (p *ReconcilePool) TryEnqueue(linkID string) bool {
	q := p.queues[shard(linkID, len(p.queues))]
	select {
	case q <- reconcileJob{linkID: linkID}:
		infraprom.ReconcileQueueDepth.Inc()
		return true
	default:
		return false
	}
}

// Enqueue blocks until the shard accepts the link or ctx is done. The
// sweep uses this so a burst cannot silently shed its own retry path.
func (p *ReconcilePool) Enqueue(ctx context.Context, linkID string) error {
	q := p.queues[shard(linkID, len(p.queues))]
	select {
	case q <- reconcileJob{linkID: linkID}:
		infraprom.ReconcileQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one reconcile on the link's own shard and waits for the
// result. On-demand recomputes go through here so they serialize with
// the stream-driven ones instead of racing them.
func (p *ReconcilePool) Run(ctx context.Context, linkID string) (model.RollupCounters, error) {
	reply := make(chan reconcileReply, 1)
	q := p.queues[shard(linkID, len(p.queues))]

	select {
	case q <- reconcileJob{linkID: linkID, reply: reply}:
		infraprom.ReconcileQueueDepth.Inc()
	case <-ctx.Done():
		return model.RollupCounters{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.counters, res.err
	case <-ctx.Done():
		// The worker still completes the job; the buffered reply channel
		// keeps it from blocking.
		return model.RollupCounters{}, ctx.Err()
	}
}

func (p *ReconcilePool) worker(id int, q <-chan reconcileJob) {
	defer p.wg.Done()
	for job := range q {
		infraprom.ReconcileQueueDepth.Dec()
		counters, err := p.reconciler.Reconcile(context.Background(), job.linkID)
		if job.reply != nil {
			job.reply <- reconcileReply{counters: counters, err: err}
			continue
		}
		if err != nil {
			// Failures stay on the async path; the sweep retries.
			p.logger.Error("reconcile failed",
				zap.Int("worker", id),
				zap.String("link_id", job.linkID),
				zap.Error(err))
		}
	}
}

func shard(linkID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(linkID))
	return int(h.Sum32() % uint32(n))
}
