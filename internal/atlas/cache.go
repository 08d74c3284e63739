package atlas

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats holds the frame cache counters. Size is the current entry
// count; the other three only change via Get/Set and ResetStats.
type CacheStats struct {
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Size      int `json:"size"`
	Evictions int `json:"evictions"`
}

// FrameCache is a strict-LRU cache of computed atlas frames, keyed by the
// canonicalized (sorted seed modules, radius) pair. "Touched" covers both
// Get hits and Set insertions, so a recently read entry is protected from
// eviction. Capacity is fixed at construction.
type FrameCache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *Frame]
	hits      int
	misses    int
	evictions int
	clearing  bool
}

// NewFrameCache creates a cache holding at most capacity frames. A
// capacity below 1 is clamped to 1.
func NewFrameCache(capacity int) *FrameCache {
	if capacity < 1 {
		capacity = 1
	}
	c := &FrameCache{}
	// The eviction callback fires inside Add/Purge while c.mu is held by
	// the calling method, so the counter needs no extra locking. Purge
	// (Clear) must not count as eviction — the clearing flag masks it.
	entries, err := lru.NewWithEvict(capacity, func(string, *Frame) {
		if !c.clearing {
			c.evictions++
		}
	})
	if err != nil {
		// Only reachable with capacity <= 0, which is clamped above.
		panic(err)
	}
	c.entries = entries
	return c
}

// Get returns the cached frame for the seed set and radius, or nil. Every
// call increments exactly one of hits/misses. A hit refreshes the entry's
// recency.
func (c *FrameCache) Get(seedModules []string, radius int) *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, ok := c.entries.Get(cacheKey(seedModules, radius))
	if !ok {
		c.misses++
		return nil
	}
	c.hits++
	return frame
}

// Set stores a frame, evicting the least-recently-touched entry when the
// cache is at capacity and the key is new.
func (c *FrameCache) Set(seedModules []string, radius int, frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(cacheKey(seedModules, radius), frame)
}

// Clear drops all entries. Cleared entries do not count as evictions.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearing = true
	c.entries.Purge()
	c.clearing = false
}

// Stats returns a snapshot of the cache counters.
func (c *FrameCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      c.entries.Len(),
		Evictions: c.evictions,
	}
}

// HitRate returns hits/(hits+misses), or 0 when no accesses have occurred.
func (c *FrameCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// ResetStats zeroes the counters without touching cached entries.
func (c *FrameCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// cacheKey canonicalizes a (seed set, radius) pair: seed order must not
// matter, different radii must never collide.
func cacheKey(seedModules []string, radius int) string {
	seeds := append([]string(nil), seedModules...)
	sort.Strings(seeds)
	return strings.Join(seeds, ",") + "|r=" + strconv.Itoa(radius)
}
