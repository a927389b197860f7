// Package matching scores inbound entities against the segment catalog.
// Matching runs exactly once per thread, at creation; the winning segment
// is frozen into the thread record as a binding snapshot.
package matching

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/types"
)

// DefaultThreshold is the minimum score for a confident match. Entities
// below it proceed unbound in degraded mode.
const DefaultThreshold = 0.6

// NoConfidentMatchError indicates that no segment reached the confidence
// threshold. Callers either retry with enriched entity data or proceed with
// a nil segment; it is a warning condition, not a fatal one.
type NoConfidentMatchError struct {
	BestSegmentID string
	BestScore     float64
	Threshold     float64
}

func (e *NoConfidentMatchError) Error() string {
	return fmt.Sprintf("no segment above threshold %.2f (best: %s at %.2f)",
		e.Threshold, e.BestSegmentID, e.BestScore)
}

// Matcher evaluates entities against an ordered segment list. Order
// matters: score ties are broken by declaration order so results stay
// deterministic and testable.
type Matcher struct {
	segments  []types.Segment
	threshold float64
	logger    *zap.Logger
}

// NewMatcher builds a matcher over a declared segment order. A zero
// threshold falls back to DefaultThreshold.
func NewMatcher(segments []types.Segment, threshold float64, logger *zap.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{segments: segments, threshold: threshold, logger: logger}
}

// Segments returns the declared segment list.
func (m *Matcher) Segments() []types.Segment {
	return m.segments
}

// Lookup returns a segment by ID.
func (m *Matcher) Lookup(segmentID string) (*types.Segment, bool) {
	for i := range m.segments {
		if m.segments[i].ID == segmentID {
			return &m.segments[i], true
		}
	}
	return nil, false
}

// Match scores the entity against every segment and returns the best
// confident result. Strictly-higher scores win; the first-declared segment
// keeps a tie.
func (m *Matcher) Match(entity map[string]any) (*types.MatchResult, error) {
	best := types.MatchResult{}
	for _, segment := range m.segments {
		score := Score(entity, &segment)
		if score > best.Score {
			best = types.MatchResult{SegmentID: segment.ID, Score: score}
		}
	}
	if best.SegmentID == "" || best.Score < m.threshold {
		return nil, &NoConfidentMatchError{
			BestSegmentID: best.SegmentID,
			BestScore:     best.Score,
			Threshold:     m.threshold,
		}
	}
	m.logger.Debug("segment matched",
		zap.String("segment_id", best.SegmentID),
		zap.Float64("score", best.Score))
	return &best, nil
}

// Score computes the weighted fraction of satisfied predicates in [0, 1].
func Score(entity map[string]any, segment *types.Segment) float64 {
	var satisfied, total float64
	for _, p := range segment.Predicates {
		weight := p.Weight
		if weight == 0 {
			weight = 1
		}
		total += weight
		if Evaluate(entity, p) {
			satisfied += weight
		}
	}
	if total == 0 {
		return 0
	}
	return satisfied / total
}

// Evaluate applies a single predicate to the entity's observable
// attributes. Missing attributes fail every operator except a negated
// equality.
func Evaluate(entity map[string]any, p types.Predicate) bool {
	value, present := entity[p.Attribute]
	switch p.Op {
	case types.OpExists:
		return present
	case types.OpEquals:
		return present && looseEqual(value, p.Value)
	case types.OpNotEquals:
		return !present || !looseEqual(value, p.Value)
	case types.OpGreaterOrEq:
		a, aok := toFloat(value)
		b, bok := toFloat(p.Value)
		return present && aok && bok && a >= b
	case types.OpLessOrEq:
		a, aok := toFloat(value)
		b, bok := toFloat(p.Value)
		return present && aok && bok && a <= b
	case types.OpContains:
		if !present {
			return false
		}
		haystack := strings.ToLower(fmt.Sprintf("%v", value))
		needle := strings.ToLower(fmt.Sprintf("%v", p.Value))
		return needle != "" && strings.Contains(haystack, needle)
	default:
		return false
	}
}

// looseEqual compares attribute values numerically when both sides are
// numbers (JSON decoding yields float64) and textually otherwise.
func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
