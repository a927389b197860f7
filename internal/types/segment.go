package types

// PredicateOp is the comparison applied by a segment predicate.
type PredicateOp string

const (
	OpEquals      PredicateOp = "eq"
	OpNotEquals   PredicateOp = "ne"
	OpGreaterOrEq PredicateOp = "gte"
	OpLessOrEq    PredicateOp = "lte"
	OpContains    PredicateOp = "contains"
	OpExists      PredicateOp = "exists"
)

// Predicate is one scoring rule evaluated against an entity attribute.
// Weight defaults to 1 when zero.
type Predicate struct {
	Attribute string      `json:"attribute" validate:"required"`
	Op        PredicateOp `json:"op" validate:"required,oneof=eq ne gte lte contains exists"`
	Value     any         `json:"value,omitempty"`
	Weight    float64     `json:"weight,omitempty" validate:"gte=0"`
}

// Segment is a named customer profile. Immutable once published; threads
// store a binding snapshot rather than referencing the live definition.
type Segment struct {
	ID               string      `json:"segment_id" validate:"required"`
	Name             string      `json:"name" validate:"required"`
	Predicates       []Predicate `json:"predicates" validate:"required,min=1,dive"`
	NarrativePath    string      `json:"narrative_path,omitempty"`
	MaterialsVersion string      `json:"materials_version,omitempty"`
}

// Validate validates the Segment using the validator.
func (s *Segment) Validate() error {
	return validate.Struct(s)
}

// MatchResult is the outcome of scoring an entity against the segment
// catalog.
type MatchResult struct {
	SegmentID string  `json:"segment_id"`
	Score     float64 `json:"score"`
}
