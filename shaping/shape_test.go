package shaping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_Boundaries(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, int64(0), table.Shape(0), "domain minimum must map to 0")
	assert.Equal(t, int64(BiasMax), table.Shape(Domain-1), "domain maximum must map to BiasMax")

	// Out-of-domain inputs clamp rather than wrap.
	assert.Equal(t, int64(BiasMax), table.Shape(Domain))
	assert.Equal(t, int64(BiasMax), table.Shape(Domain+12345))
}

func TestShape_MonotoneOverFullDomain(t *testing.T) {
	if testing.Short() {
		t.Skip("full-domain scan")
	}

	table := DefaultTable()

	prev := table.Shape(0)
	for u := uint64(1); u < Domain; u++ {
		cur := table.Shape(u)
		if cur < prev {
			t.Fatalf("monotonicity violated at u=%d: %d -> %d", u, prev, cur)
		}
		prev = cur
	}
	assert.Equal(t, int64(BiasMax), prev)
}

func TestShape_ExactAtKnots(t *testing.T) {
	table := DefaultTable()
	knots := table.Knots()

	// Interval selection is closed on the left: an input exactly on a
	// knot evaluates via the right interval at t=0 and must reproduce the
	// knot value exactly.
	for k := 0; k <= Intervals; k++ {
		u := uint64(k) * Step
		if k == Intervals {
			u = Domain - 1
		}
		assert.Equal(t, knots[k], table.Shape(u), "knot %d", k)
	}
}

func TestShape_ContinuousAtKnotBoundaries(t *testing.T) {
	table := DefaultTable()

	// The left-limit just below each knot may differ from the knot value
	// by at most one bias unit (the floor step); any larger jump means the
	// polynomial pieces do not meet.
	for k := 1; k <= Intervals; k++ {
		u := uint64(k) * Step
		left := table.Shape(u - 1)
		right := table.Shape(u)
		require.LessOrEqual(t, left, right, "boundary %d not monotone", k)
		require.LessOrEqual(t, right-left, int64(1), "discontinuity at knot %d", k)
	}
}

func TestShape_Deterministic(t *testing.T) {
	table := DefaultTable()
	again := DefaultTable()

	for _, u := range []uint64{0, 1, 17, Step - 1, Step, 5 * Step, Domain - 2, Domain - 1} {
		assert.Equal(t, table.Shape(u), again.Shape(u), "u=%d", u)
	}
}

func TestShape_DistributionOverUniformInput(t *testing.T) {
	table := DefaultTable()

	// Scan a uniform grid over the whole domain. The empirical mean and
	// upper-tail mass must match the target distribution.
	var sum int64
	var above50 int
	var n int
	for u := uint64(0); u < Domain; u += 7 {
		b := table.Shape(u)
		sum += b
		if b > 50 {
			above50++
		}
		n++
	}

	mean := float64(sum) / float64(n)
	assert.InDelta(t, 28.0, mean, 1.5, "mean bias drifted from target")

	tail := float64(above50) / float64(n)
	assert.Greater(t, tail, 0.09, "upper tail too light")
	assert.Less(t, tail, 0.13, "upper tail too heavy")
}
