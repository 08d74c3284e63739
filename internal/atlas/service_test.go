package atlas

import (
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(testPolicy(), testFetch(nil), ServiceConfig{
		CacheCapacity: 10,
		Debounce:      10 * time.Millisecond,
	}, nil)
	t.Cleanup(s.Close)
	return s
}

func TestRecallCachesByRequest(t *testing.T) {
	s := newTestService(t)

	frame, cached, err := s.Recall([]string{"ui/user-admin-panel"}, 1, 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if cached {
		t.Error("first recall reported cached")
	}
	if len(frame.Modules) != 3 {
		t.Errorf("len(Modules) = %d, want 3", len(frame.Modules))
	}

	again, cached, err := s.Recall([]string{"ui/user-admin-panel"}, 1, 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !cached {
		t.Error("second recall missed the cache")
	}
	if again != frame {
		t.Error("cached recall returned a different frame pointer")
	}

	stats := s.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestRecallNoSeeds(t *testing.T) {
	s := newTestService(t)
	if _, _, err := s.Recall(nil, 1, 0); err == nil {
		t.Error("Recall with no seeds succeeded")
	}
}

func TestRecallDefaultRadius(t *testing.T) {
	s := newTestService(t)
	frame, _, err := s.Recall([]string{"ui/user-admin-panel"}, -1, 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if frame.FoldRadius != DefaultFoldRadius {
		t.Errorf("FoldRadius = %d, want %d", frame.FoldRadius, DefaultFoldRadius)
	}
	// Default radius 2 reaches all four fixture modules.
	if len(frame.Modules) != 4 {
		t.Errorf("len(Modules) = %d, want 4", len(frame.Modules))
	}
}

func TestRecallCriticalRule(t *testing.T) {
	s := newTestService(t)

	frame, _, err := s.Recall([]string{"ui/user-admin-panel"}, 1, 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !strings.Contains(frame.CriticalRule, "ui/user-admin-panel") ||
		!strings.Contains(frame.CriticalRule, "services/auth-core") {
		t.Errorf("CriticalRule does not name the forbidden pair: %q", frame.CriticalRule)
	}
	if !strings.Contains(frame.CriticalRule, "auth tokens flow only through the access API") {
		t.Errorf("CriticalRule drops the policy note: %q", frame.CriticalRule)
	}

	// A neighborhood with no forbidden edge gets the all-clear sentence.
	clean, _, err := s.Recall([]string{"data/user-store"}, 1, 0)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !strings.Contains(clean.CriticalRule, "no forbidden dependencies") {
		t.Errorf("CriticalRule = %q, want all-clear", clean.CriticalRule)
	}
}

func TestRecallAutoTunesToBudget(t *testing.T) {
	s := newTestService(t)

	// A tiny budget forces the radius down from 2.
	frame, _, err := s.Recall([]string{"ui/user-admin-panel"}, 2, 60)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if frame.FoldRadius >= 2 {
		t.Errorf("FoldRadius = %d, want < 2 under a 60-token budget", frame.FoldRadius)
	}

	// The shrunk frame is cached under the requested radius.
	_, cached, err := s.Recall([]string{"ui/user-admin-panel"}, 2, 60)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !cached {
		t.Error("repeat of the auto-tuned request missed the cache")
	}
}

func TestServiceRebuildClearsCache(t *testing.T) {
	s := newTestService(t)

	if _, _, err := s.Recall([]string{"ui/user-admin-panel"}, 1, 0); err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if got := s.CacheStats().Size; got != 1 {
		t.Fatalf("Size = %d, want 1", got)
	}

	result, err := s.TriggerRebuild()
	if err != nil {
		t.Fatalf("TriggerRebuild: %v", err)
	}
	if !result.Success {
		t.Fatalf("rebuild failed: %s", result.Err)
	}

	ok := waitFor(t, time.Second, func() bool { return s.CacheStats().Size == 0 })
	if !ok {
		t.Errorf("cache not cleared after rebuild, size = %d", s.CacheStats().Size)
	}
}

func TestServiceValidate(t *testing.T) {
	s := newTestService(t)
	built, result, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Errorf("fixture atlas invalid: %v", result.Errors)
	}
	if len(built.Nodes) != 4 {
		t.Errorf("len(Nodes) = %d, want 4", len(built.Nodes))
	}
}
