package service

import (
	"context"
	"errors"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	apprepository "github.com/hoplink/hoplink/internal/app/repository"
	infraprom "github.com/hoplink/hoplink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// RedirectService orchestrates one resolution: policy lookup, restriction
// evaluation, and — only on an allowed redirect — a detached recording
// side effect. The synchronous path never writes shared state, so any
// number of resolutions run in parallel without coordination.
type RedirectService struct {
	logger        *zap.Logger
	links         apprepository.LinkRepository
	recorder      *EventRecorder
	filter        *IdentifierFilter
	lookupTimeout time.Duration
}

// RedirectDeps groups what the redirect service needs.
type RedirectDeps struct {
	Logger        *zap.Logger
	Links         apprepository.LinkRepository
	Recorder      *EventRecorder
	Filter        *IdentifierFilter
	LookupTimeout time.Duration
}

// NewRedirectService wires the resolution pipeline.
func NewRedirectService(deps RedirectDeps) *RedirectService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.LookupTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &RedirectService{
		logger:        logger,
		links:         deps.Links,
		recorder:      deps.Recorder,
		filter:        deps.Filter,
		lookupTimeout: timeout,
	}
}

// Resolve turns an identifier plus request context into an outcome.
// Internal faults degrade to Denied(internal_error): the user gets a safe
// fallback page and the cause stays in the log.
func (s *RedirectService) Resolve(ctx context.Context, identifier string, rctx model.RequestContext) model.Outcome {
	if identifier == "" {
		return s.observe(model.NotFound())
	}

	// Definitive negative from the bloom guard: skip the store.
	if s.filter != nil && !s.filter.MayExist(identifier) {
		return s.observe(model.NotFound())
	}

	link, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, apprepository.ErrLinkNotFound) {
			return s.observe(model.NotFound())
		}
		s.logger.Error("policy lookup failed",
			zap.String("identifier", identifier), zap.Error(err))
		return s.observe(model.Denied(model.ReasonInternalError))
	}

	outcome := Evaluate(link, rctx)

	if outcome.Kind == model.OutcomeRedirect {
		// Detached side effect: recording must never delay or fail the
		// redirect response.
		go s.recordAsync(link.ID, rctx)
	}

	return s.observe(outcome)
}

// lookup bounds the store read and retries once; a second miss surfaces
// as an internal fault rather than a hung redirect.
func (s *RedirectService) lookup(ctx context.Context, identifier string) (*model.Link, error) {
	link, err := s.lookupOnce(ctx, identifier)
	if err == nil || errors.Is(err, apprepository.ErrLinkNotFound) {
		return link, err
	}

	s.logger.Warn("policy lookup retrying",
		zap.String("identifier", identifier), zap.Error(err))
	return s.lookupOnce(ctx, identifier)
}

func (s *RedirectService) lookupOnce(ctx context.Context, identifier string) (*model.Link, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	return s.links.GetByIdentifier(lookupCtx, identifier)
}

func (s *RedirectService) recordAsync(linkID string, rctx model.RequestContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, linkID, rctx); err != nil {
			s.logger.Error("failed to record click",
				zap.String("link_id", linkID), zap.Error(err))
		}
	}

	if err := s.links.UpdateLastResolved(ctx, linkID, rctx.Now); err != nil {
		s.logger.Warn("failed to stamp last resolved",
			zap.String("link_id", linkID), zap.Error(err))
	}
}

func (s *RedirectService) observe(outcome model.Outcome) model.Outcome {
	infraprom.ResolveOutcomes.WithLabelValues(outcomeLabel(outcome)).Inc()
	return outcome
}

func outcomeLabel(outcome model.Outcome) string {
	switch outcome.Kind {
	case model.OutcomeRedirect:
		return "redirect"
	case model.OutcomeRequiresPassword:
		return "requires_password"
	case model.OutcomeDenied:
		return "denied_" + string(outcome.Reason)
	default:
		return "not_found"
	}
}
