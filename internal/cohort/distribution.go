package cohort

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidDistribution is returned when a cohorts document is not an
// object of numeric weights.
var ErrInvalidDistribution = errors.New("invalid cohort distribution")

// Weight is one cohort and its target share of the population.
type Weight struct {
	Cohort string  `json:"cohort"`
	Weight float64 `json:"weight"`
}

// Distribution is an ordered list of cohort weights. Order matters: the
// assignment walk accumulates weights in this order.
type Distribution []Weight

// ParseDistribution reads a {"cohort": weight, ...} document preserving the
// key order it was stored with. encoding/json into a map would lose it.
func ParseDistribution(doc []byte) (Distribution, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidDistribution)
	}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalidDistribution, root.Type)
	}

	var (
		dist Distribution
		err  error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			err = fmt.Errorf("%w: weight of %q is %s, not a number", ErrInvalidDistribution, key.String(), value.Type)
			return false
		}
		dist = append(dist, Weight{Cohort: key.String(), Weight: value.Float()})
		return true
	})
	if err != nil {
		return nil, err
	}

	return dist, nil
}

// Total returns the sum of all weights.
func (d Distribution) Total() float64 {
	var sum float64
	for _, w := range d {
		sum += w.Weight
	}
	return sum
}

// Names returns the cohort names in order.
func (d Distribution) Names() []string {
	names := make([]string, len(d))
	for i, w := range d {
		names[i] = w.Cohort
	}
	return names
}
