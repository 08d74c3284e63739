// Package server wires all LexMap components and creates the MCP server.
//
// This is the composition root: it creates concrete implementations (frame
// store, atlas service, policy watcher) and injects them into the tools
// that depend on them. No business logic lives here — only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lexmap/lexmap/internal/atlas"
	"github.com/lexmap/lexmap/internal/atlastools"
	"github.com/lexmap/lexmap/internal/config"
	"github.com/lexmap/lexmap/internal/frames"
	"github.com/lexmap/lexmap/internal/policy"
	"github.com/lexmap/lexmap/internal/watch"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with every tool registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function stops the rebuild coordinators, the policy
// watcher, and the frame store, and must be called on shutdown (typically
// via defer). It is always non-nil.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, noop, fmt.Errorf("creating logger: %w", err)
	}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, noop, fmt.Errorf("loading policy: %w", err)
	}
	logger.Info("policy loaded",
		zap.String("path", cfg.PolicyPath),
		zap.Int("modules", len(pol.Modules)))

	store, err := frames.New(frames.Config{
		DataDir:          cfg.DataDir,
		MaxSummaryLength: 2000,
		MaxSearchResults: 20,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("opening frame store: %w", err)
	}

	service := atlas.NewService(pol, store.FetchAll, atlas.ServiceConfig{
		CacheCapacity: cfg.CacheCapacity,
		Debounce:      cfg.Debounce(),
		Hooks: atlas.QueueHooks{
			OnRebuildCompleted: func(r *atlas.RebuildResult) {
				logger.Info("background rebuild completed",
					zap.Int("frames", r.FrameCount),
					zap.Int64("duration_ms", r.DurationMs))
			},
			OnRebuildFailed: func(r *atlas.RebuildResult) {
				logger.Warn("background rebuild failed", zap.String("error", r.Err))
			},
		},
	}, logger)

	// --- Policy hot reload ---
	//
	// The watcher reports raw file changes; reload errors keep the last
	// good policy so a half-saved file never wedges the server.
	var watcher *watch.PolicyWatcher
	if cfg.WatchPolicy {
		watcher, err = watch.New(cfg.PolicyPath, func(path string) {
			fresh, loadErr := policy.Load(path)
			if loadErr != nil {
				logger.Warn("policy reload failed, keeping previous policy",
					zap.Error(loadErr))
				return
			}
			service.ReloadPolicy(fresh)
			logger.Info("policy reloaded", zap.Int("modules", len(fresh.Modules)))
			go func() { _, _ = service.TriggerRebuild() }()
		}, logger)
		if err != nil {
			// Watching is best-effort; the server still works with a
			// static policy.
			logger.Warn("policy watcher disabled", zap.Error(err))
			watcher = nil
		}
	}

	cleanup := func() {
		if watcher != nil {
			_ = watcher.Close()
		}
		service.Close()
		if err := store.Close(); err != nil {
			logger.Warn("frame store close", zap.Error(err))
		}
		_ = logger.Sync()
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"lexmap",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register atlas tools ---

	recallTool := atlastools.NewRecallTool(service, cfg.DefaultFoldRadius, cfg.MaxFrameTokens)
	s.AddTool(recallTool.Definition(), recallTool.Handle)

	rebuildTool := atlastools.NewRebuildTool(service)
	s.AddTool(rebuildTool.Definition(), rebuildTool.Handle)

	validateTool := atlastools.NewValidateTool(service)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	statsTool := atlastools.NewStatsTool(service, store)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	// --- Register frame tools ---

	frameSave := atlastools.NewFrameSaveTool(store, service)
	s.AddTool(frameSave.Definition(), frameSave.Handle)

	frameSearch := atlastools.NewFrameSearchTool(store)
	s.AddTool(frameSearch.Definition(), frameSearch.Handle)

	frameRecent := atlastools.NewFrameRecentTool(store)
	s.AddTool(frameRecent.Definition(), frameRecent.Handle)

	frameDelete := atlastools.NewFrameDeleteTool(store)
	s.AddTool(frameDelete.Definition(), frameDelete.Handle)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used when initialization fails early.
func noop() {}

// newLogger builds a zap logger writing to stderr; stdout carries the MCP
// protocol and must stay clean.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// serverInstructions returns the system instructions that tell the AI how
// to use LexMap effectively.
func serverInstructions() string {
	return `You have access to LexMap, a spatial-temporal memory MCP server for codebases.

LexMap keeps two kinds of memory:
- SPATIAL (the Atlas): a module dependency map derived from the repository's
  policy file. It knows which modules exist, which dependencies are allowed,
  and which are forbidden.
- TEMPORAL (Frames): timestamped snapshots of work sessions — what was
  touched and why.

## When to use the atlas

Call atlas_recall BEFORE modifying a module:
- Pass the module IDs you are about to touch as seed_modules
- The response shows every module within the fold radius, with allowed and
  FORBIDDEN dependencies marked
- Respect the critical rule in the response: a FORBIDDEN edge means that
  dependency must not be introduced, even if the code would compile

Use fold_radius to control scope: 1 for immediate neighbors, 2 (default)
for the practical blast radius. Use max_tokens when your context is tight;
the radius shrinks automatically until the frame fits.

Call atlas_validate after editing the policy file to catch structural
mistakes (dangling references, bad weights). Call atlas_rebuild to refresh
the atlas on demand; concurrent calls share one rebuild.

## When to save frames

Call frame_save after completing a meaningful unit of work:
- title: short and searchable ("moved token minting behind the access API")
- summary: what was done and the outcome
- reason: why — the trigger or motivation
- modules: the module IDs touched (these feed back into the atlas)

Saving a frame schedules a background atlas rebuild automatically; you do
not need to call atlas_rebuild afterwards.

## When to search

- frame_recent at session start to pick up where the last session left off
- frame_search to find when a module was last touched and why
- atlas_stats to check LexMap health (cache hit rate, queue state, store size)`
}
