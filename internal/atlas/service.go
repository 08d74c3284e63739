package atlas

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexmap/lexmap/internal/frames"
	"github.com/lexmap/lexmap/internal/policy"
)

// DefaultFoldRadius is the hop radius used when a recall does not ask for
// one.
const DefaultFoldRadius = 2

// Service is the atlas facade the tool layer talks to. It owns the policy,
// the frame cache, and both rebuild coordinators; recall requests flow
// through the cache and the token-budget auto-tuner.
type Service struct {
	cache     *FrameCache
	rebuilder *Rebuilder
	manager   *RebuildManager
	queue     *RebuildQueue
	logger    *zap.Logger
}

// ServiceConfig holds the knobs for constructing a Service.
type ServiceConfig struct {
	CacheCapacity int
	Debounce      time.Duration
	Hooks         QueueHooks
}

// NewService wires the atlas facade: one shared Rebuilder feeds both the
// fan-in manager (explicit TriggerRebuild callers) and the event queue
// (frame ingestions). A nil logger falls back to zap.NewNop(). Close must
// be called to release the queue worker.
func NewService(pol *policy.Policy, fetch FetchFramesFunc, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	rebuilder := NewRebuilder(pol)
	s := &Service{
		cache:     NewFrameCache(cfg.CacheCapacity),
		rebuilder: rebuilder,
		manager:   NewRebuildManager(fetch, rebuilder, cfg.Debounce, logger),
		queue:     NewRebuildQueue(fetch, rebuilder, cfg.Debounce, cfg.Hooks, logger),
		logger:    logger,
	}
	// Any successful rebuild means the policy-derived graph may have moved;
	// cached neighborhoods are stale.
	s.manager.OnRebuild(func(r *RebuildResult) {
		if r.Success {
			s.cache.Clear()
		}
	})
	return s
}

// Recall extracts the neighborhood frame around the seed modules. A cached
// frame for the same (seed set, radius) pair is returned as-is; otherwise
// the neighborhood is computed, auto-tuned down to maxTokens when a positive
// budget is given, cached under the requested key, and returned. The second
// return value reports whether the frame came from the cache.
func (s *Service) Recall(seedModules []string, radius, maxTokens int) (*Frame, bool, error) {
	seeds := dedupeStrings(seedModules)
	if len(seeds) == 0 {
		return nil, false, fmt.Errorf("atlas: recall needs at least one seed module")
	}
	if radius < 0 {
		radius = DefaultFoldRadius
	}

	if frame := s.cache.Get(seeds, radius); frame != nil {
		return frame, true, nil
	}

	generate := func(r int) (*Frame, error) {
		return s.buildFrame(seeds, r), nil
	}

	var frame *Frame
	if maxTokens > 0 {
		tuned, err := AutoTuneRadius(generate, radius, maxTokens, func(oldRadius, newRadius, tokens, budget int) {
			s.logger.Debug("fold radius reduced to fit token budget",
				zap.Int("old_radius", oldRadius),
				zap.Int("new_radius", newRadius),
				zap.Int("tokens", tokens),
				zap.Int("max_tokens", budget))
		})
		if err != nil {
			return nil, false, err
		}
		frame = tuned.Frame
	} else {
		frame, _ = generate(radius)
	}

	// Cached under the requested radius so a repeat of the same request
	// hits even when auto-tune shrank the frame.
	s.cache.Set(seeds, radius, frame)
	return frame, false, nil
}

// buildFrame projects a computed neighborhood into the recall wire format.
func (s *Service) buildFrame(seeds []string, radius int) *Frame {
	hood := ComputeFoldRadius(seeds, radius, s.rebuilder.Policy())
	return &Frame{
		AtlasTimestamp: timestamp(),
		SeedModules:    hood.SeedModules,
		FoldRadius:     radius,
		Modules:        hood.Modules,
		Edges:          hood.Edges,
		CriticalRule:   criticalRule(hood.Edges),
	}
}

// criticalRule renders the most important constraint in the neighborhood:
// the first forbidden edge, or an all-clear when none survived the fold.
func criticalRule(edges []Edge) string {
	for _, e := range edges {
		if e.Allowed {
			continue
		}
		rule := fmt.Sprintf("%s must never call %s", e.From, e.To)
		if e.Reason != "" {
			rule += ": " + e.Reason
		}
		return rule
	}
	return "no forbidden dependencies in this neighborhood"
}

// TriggerRebuild requests a full atlas rebuild through the fan-in manager
// and blocks until the shared result exists.
func (s *Service) TriggerRebuild() (*RebuildResult, error) {
	return s.manager.TriggerRebuild()
}

// NotifyFrameIngested tells the event queue that a new temporal frame was
// stored. Rapid ingestions coalesce into one background rebuild.
func (s *Service) NotifyFrameIngested(frame frames.Frame) {
	s.queue.NotifyFrameIngested(frame)
}

// Rebuild runs an immediate synchronous rebuild, bypassing debounce. Used
// by the CLI scan path where there is no server lifecycle.
func (s *Service) Rebuild() *RebuildResult {
	return executeRebuild(s.manager.fetch, s.rebuilder)
}

// Queue exposes the event-driven coordinator for the ingestion path.
func (s *Service) Queue() *RebuildQueue {
	return s.queue
}

// CacheStats returns the frame cache counters.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// CacheHitRate returns the cache's hit ratio.
func (s *Service) CacheHitRate() float64 {
	return s.cache.HitRate()
}

// ClearCache drops every cached frame.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// Validate checks the current policy-derived atlas without storing anything.
func (s *Service) Validate() (*Atlas, ValidationResult, error) {
	built, err := s.rebuilder.Rebuild(nil)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	return built, Validate(built), nil
}

// Policy returns the current module policy.
func (s *Service) Policy() *policy.Policy {
	return s.rebuilder.Policy()
}

// ReloadPolicy swaps in a freshly loaded policy and drops every cached
// frame, since neighborhoods computed against the old rules are stale.
func (s *Service) ReloadPolicy(pol *policy.Policy) {
	s.rebuilder.SetPolicy(pol)
	s.cache.Clear()
}

// Close disposes the manager and stops the queue worker. In-flight rebuilds
// run to completion; pending manager waiters fail with ErrManagerDisposed.
func (s *Service) Close() {
	s.manager.Dispose()
	s.queue.Stop()
}
