package shaping

import (
	"errors"
	"fmt"
)

const (
	// Intervals is the number of piecewise-cubic intervals in a table.
	Intervals = 10

	// Step is the width of one interval in the uniform input domain.
	// A power of two keeps the fixed-point evaluation exact in int64.
	Step = 1 << 16

	// Domain is the size of the uniform input domain. The extra point
	// lets the final knot be evaluated exactly, so the domain maximum
	// maps to BiasMax without a special case.
	Domain = Intervals*Step + 1

	// BiasMax is the upper bound of the bias scale.
	BiasMax = 100
)

// Table is an immutable, versioned set of piecewise-cubic coefficients
// approximating the inverse CDF of the target bias distribution.
//
// A table is shared by every pool and must never change while votes are
// being accepted; upgrades construct a new table under a new version.
// Mutating shaping behavior in place would silently re-score every voter,
// so there are deliberately no setters on this type.
type Table struct {
	version  int
	knots    [Intervals + 1]int64
	tangents [Intervals + 1]int64
	coeffs   [Intervals]cubic
}

// cubic holds the integer Hermite coefficients of one interval, for the
// normalized parameter t in [0, Step]:
//
//	h(t) = a0 + a1*(t/Step) + a2*(t/Step)^2 + a3*(t/Step)^3
type cubic struct {
	a0, a1, a2, a3 int64
}

// Knot values of the version-1 table: the target distribution's deciles
// on the bias scale. Right-skewed, mean ~28.6, about 11% of mass above 50.
var defaultKnots = [Intervals + 1]int64{0, 5, 10, 15, 20, 25, 31, 37, 44, 52, 100}

// NewTable builds a coefficient table from decile knot values.
//
// Tangents are chosen as the minimum of the two adjacent knot slopes
// (endpoint tangents use the single adjacent slope), which keeps every
// interval inside the Fritsch-Carlson monotone region. The resulting
// interpolant is exactly continuous at every knot and monotone
// non-decreasing over the whole domain.
func NewTable(version int, knots [Intervals + 1]int64) (*Table, error) {
	t := &Table{version: version, knots: knots}

	var deltas [Intervals]int64
	for i := 0; i < Intervals; i++ {
		deltas[i] = knots[i+1] - knots[i]
	}

	t.tangents[0] = deltas[0]
	t.tangents[Intervals] = deltas[Intervals-1]
	for i := 1; i < Intervals; i++ {
		t.tangents[i] = min(deltas[i-1], deltas[i])
	}

	for i := 0; i < Intervals; i++ {
		d := deltas[i]
		m0 := t.tangents[i]
		m1 := t.tangents[i+1]
		t.coeffs[i] = cubic{
			a0: knots[i],
			a1: m0,
			a2: 3*d - 2*m0 - m1,
			a3: m0 + m1 - 2*d,
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultTable returns the version-1 shaping table used by the protocol.
func DefaultTable() *Table {
	t, err := NewTable(1, defaultKnots)
	if err != nil {
		// The built-in knots are constants; failing here is a build defect.
		panic(fmt.Sprintf("shaping: default table invalid: %v", err))
	}
	return t
}

// Version reports the table's configuration version.
func (t *Table) Version() int {
	return t.version
}

// Knots returns a copy of the table's knot values.
func (t *Table) Knots() []int64 {
	out := make([]int64, len(t.knots))
	copy(out, t.knots[:])
	return out
}

// Validate checks the structural invariants of the table: boundary
// mapping, non-decreasing knots, and per-interval monotonicity via the
// Fritsch-Carlson box condition (both tangents within three times the
// interval slope). The box condition is sufficient, not necessary; every
// table built by NewTable satisfies it by construction.
func (t *Table) Validate() error {
	if t.knots[0] != 0 {
		return errors.New("shaping: first knot must map the domain minimum to 0")
	}
	if t.knots[Intervals] != BiasMax {
		return fmt.Errorf("shaping: last knot must map the domain maximum to %d", BiasMax)
	}

	for i := 0; i < Intervals; i++ {
		d := t.knots[i+1] - t.knots[i]
		if d < 0 {
			return fmt.Errorf("shaping: knots decrease at interval %d", i)
		}
		m0, m1 := t.tangents[i], t.tangents[i+1]
		if m0 < 0 || m1 < 0 {
			return fmt.Errorf("shaping: negative tangent at interval %d", i)
		}
		if d == 0 {
			if m0 != 0 || m1 != 0 {
				return fmt.Errorf("shaping: flat interval %d requires zero tangents", i)
			}
			continue
		}
		if m0 > 3*d || m1 > 3*d {
			return fmt.Errorf("shaping: interval %d outside monotone region", i)
		}
	}
	return nil
}
