package shaping

const (
	stepSquared = int64(Step) * int64(Step)
	stepCubed   = stepSquared * int64(Step)
)

// Shape maps a uniform integer in [0, Domain) to a bias score in
// [0, BiasMax] following the table's target distribution.
//
// Evaluation is exact integer arithmetic: the cubic is computed over the
// common denominator Step^3 and floored once at the end, so results are
// bit-identical across platforms and monotonicity of the underlying
// polynomial carries over to the integer output. Interval selection is
// closed on the left; the domain maximum falls on the final knot and
// evaluates to exactly BiasMax.
func (t *Table) Shape(u uint64) int64 {
	if u >= Domain {
		u = Domain - 1
	}

	i := int(u / Step)
	if i >= Intervals {
		i = Intervals - 1
	}
	x := int64(u) - int64(i)*Step

	c := t.coeffs[i]
	num := c.a0*stepCubed + c.a1*x*stepSquared + c.a2*x*x*Step + c.a3*x*x*x
	bias := num / stepCubed

	if bias < 0 {
		return 0
	}
	if bias > BiasMax {
		return BiasMax
	}
	return bias
}
