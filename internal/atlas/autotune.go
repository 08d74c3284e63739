package atlas

import (
	"encoding/json"
	"math"
)

// Auto-tune defaults for the pre-generation estimate. avgDegree is the
// assumed branching factor of the policy graph; tokensPerModule covers a
// node plus its share of edges in the serialized frame.
const (
	DefaultAvgDegree       = 3.0
	DefaultTokensPerModule = 40
)

// EstimateFrameTokens approximates the token cost of a frame using the
// chars/4 heuristic over its JSON serialization (standard approximation for
// GPT/Claude tokenizers), rounded up.
func EstimateFrameTokens(frame *Frame) int {
	if frame == nil {
		return 0
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return 0
	}
	return (len(data) + 3) / 4
}

// AutoTuneResult is the outcome of a budget-fitting run.
type AutoTuneResult struct {
	Frame      *Frame `json:"frame"`
	RadiusUsed int    `json:"radiusUsed"`
	TokensUsed int    `json:"tokensUsed"`
}

// AdjustFunc observes one radius decrement during auto-tuning.
type AdjustFunc func(oldRadius, newRadius, tokens, maxTokens int)

// AutoTuneRadius shrinks a neighborhood to fit a token budget: generate at
// startRadius, then while the estimated tokens exceed maxTokens and the
// radius is above zero, decrement the radius by exactly one, regenerate, and
// report the step through onAdjust (may be nil). Tuning stops
// unconditionally at radius 0 even if the frame is still over budget — the
// returned radius is never negative. Generation errors abort tuning and are
// returned to the caller.
func AutoTuneRadius(generate func(radius int) (*Frame, error), startRadius, maxTokens int, onAdjust AdjustFunc) (*AutoTuneResult, error) {
	radius := startRadius
	if radius < 0 {
		radius = 0
	}

	frame, err := generate(radius)
	if err != nil {
		return nil, err
	}
	tokens := EstimateFrameTokens(frame)

	for tokens > maxTokens && radius > 0 {
		next := radius - 1
		if onAdjust != nil {
			onAdjust(radius, next, tokens, maxTokens)
		}
		radius = next
		if frame, err = generate(radius); err != nil {
			return nil, err
		}
		tokens = EstimateFrameTokens(frame)
	}

	return &AutoTuneResult{Frame: frame, RadiusUsed: radius, TokensUsed: tokens}, nil
}

// EstimateTokensBefore predicts a frame's token cost without paying for a
// graph build, so callers can pick a sensible starting radius up front. The
// expected module count is the seed count times the geometric growth of the
// branching factor over the radius. The estimate grows monotonically with
// seed count, radius, and avgDegree. Zero (or negative) avgDegree and
// tokensPerModule fall back to the package defaults.
func EstimateTokensBefore(seedCount, radius int, avgDegree float64, tokensPerModule int) int {
	if seedCount <= 0 {
		return 0
	}
	if radius < 0 {
		radius = 0
	}
	if avgDegree <= 0 {
		avgDegree = DefaultAvgDegree
	}
	if tokensPerModule <= 0 {
		tokensPerModule = DefaultTokensPerModule
	}

	// Expected frontier: seeds * (1 + d + d^2 + ... + d^radius).
	modules := 0.0
	for i := 0; i <= radius; i++ {
		modules += math.Pow(avgDegree, float64(i))
	}
	modules *= float64(seedCount)

	return int(math.Ceil(modules * float64(tokensPerModule)))
}
