// Package cohort partitions caller identities into experiment cohorts.
//
// Assignment is a pure function of (identity, experiment, distribution): the
// same inputs always yield the same cohort, so a caller can be bucketed
// before anything is read back from storage.
package cohort

// DefaultCohort is returned for an empty distribution.
const DefaultCohort = "control"

// Engine assigns cohorts using a configurable Hasher.
type Engine struct {
	hasher Hasher
}

// NewEngine returns an Engine using h. A nil h selects RollingHasher.
func NewEngine(h Hasher) *Engine {
	if h == nil {
		h = RollingHasher{}
	}
	return &Engine{hasher: h}
}

// Strategy returns the name of the hashing strategy in use.
func (e *Engine) Strategy() string {
	return e.hasher.Name()
}

// Assign returns the cohort for identity within experimentID.
//
// The normalized bucket is compared against the running sum of weights and
// the first cohort whose cumulative weight is strictly greater wins, so a
// value sitting exactly on a boundary belongs to the next cohort.
//
// When the weights sum to less than the normalized value (misconfiguration
// or float rounding) the first cohort is returned. This keeps every caller
// assigned but silently over-weights that cohort.
func (e *Engine) Assign(identity, experimentID string, d Distribution) string {
	if len(d) == 0 {
		return DefaultCohort
	}

	normalized := Normalize(e.hasher.Bucket(identity, experimentID))

	var cumulative float64
	for _, w := range d {
		cumulative += w.Weight
		if normalized < cumulative {
			return w.Cohort
		}
	}

	return d[0].Cohort
}

// Normalize maps a bucket in [0, Buckets) onto [0, 1).
func Normalize(bucket int) float64 {
	return float64(bucket) / Buckets
}

// AssignCohort assigns with the rolling hash, the production default.
func AssignCohort(identity string, d Distribution) string {
	return NewEngine(RollingHasher{}).Assign(identity, "", d)
}
