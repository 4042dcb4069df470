// Package partition splits a finite total into shares that satisfy sum and
// bound constraints.
//
// Every generator draws left to right: at each position the value is drawn
// uniformly from the interval that still leaves the remaining positions a
// feasible solution, so the sequence always hits the target without
// rejection sampling. The price is a mild bias toward the bound midpoint for
// the shares drawn last; this is accepted.
package partition

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

const (
	// Precision is the number of decimal places kept for percentages.
	Precision int32 = 6
	// MaxHalvings bounds how many times the arithmetic progression step is
	// halved while looking for a positive first term.
	MaxHalvings = 16

	// hundredUnits is 100 expressed in units of 10^-Precision.
	hundredUnits int64 = 100_000_000
	// defaultStepUnits is the initial progression step, 0.01.
	defaultStepUnits int64 = 10_000
	// maxArithmeticShares is the largest n with n(n+1)/2 <= hundredUnits.
	maxArithmeticShares int64 = 14_141
)

var hundred = decimal.NewFromInt(100)

// Generator produces partitions from a seeded source. It is safe for
// concurrent use; draws are serialized so a fixed seed gives a fixed
// sequence for a fixed call order.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded deterministically.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom returns a generator seeded from the clock.
func NewRandom() *Generator {
	return New(uint64(time.Now().UnixNano()))
}

// BoundedIntegers returns n integers in [min, max] summing exactly to total.
func (g *Generator) BoundedIntegers(n int, total, min, max uint64) ([]uint64, error) {
	if n <= 0 {
		return nil, xerrors.New(fleet.CodeInfeasiblePartition, "share count must be positive")
	}
	if min > max {
		return nil, xerrors.Newf(fleet.CodeInfeasiblePartition, "min %d exceeds max %d", min, max)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	shares := make([]uint64, n)
	remaining := total
	for i := 0; i < n; i++ {
		others := uint64(n - i - 1)
		lo, hi, ok := integerBounds(remaining, others, min, max)
		if !ok {
			return nil, xerrors.Newf(fleet.CodeInfeasiblePartition,
				"cannot split %d into %d shares within [%d, %d]", total, n, min, max)
		}
		value := lo
		switch span := hi - lo; {
		case span == ^uint64(0):
			value = g.rng.Uint64()
		case span > 0:
			value = lo + g.rng.Uint64N(span+1)
		}
		shares[i] = value
		remaining -= value
	}
	return shares, nil
}

// integerBounds computes the feasible interval for the next share given the
// amount still to distribute and how many shares follow it.
func integerBounds(remaining, others, min, max uint64) (lo, hi uint64, ok bool) {
	lo = min
	if reserveMax, overflow := mulChecked(others, max); !overflow && remaining > reserveMax {
		if need := remaining - reserveMax; need > lo {
			lo = need
		}
	}
	reserveMin, overflow := mulChecked(others, min)
	if overflow || reserveMin > remaining {
		return 0, 0, false
	}
	hi = remaining - reserveMin
	if max < hi {
		hi = max
	}
	return lo, hi, lo <= hi
}

func mulChecked(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	product := a * b
	return product, product/a != b
}

// UniqueArithmeticPercentages returns n strictly increasing percentages that
// sum to exactly 100: a, a+d, a+2d, ... with d starting at 0.01 and halved
// until the first term is positive. The progression is computed in units of
// 10^-Precision so every term is exact; the remainder of the division by n
// (fewer than n units) is spread one unit each over the trailing terms.
func (g *Generator) UniqueArithmeticPercentages(n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, xerrors.New(fleet.CodeInfeasiblePartition, "share count must be positive")
	}
	// Beyond this even d = 1 unit cannot leave a positive first term.
	if int64(n) > maxArithmeticShares {
		return nil, xerrors.Newf(fleet.CodeInfeasiblePartition,
			"%d arithmetic shares are not distinguishable at %d decimal places", n, Precision)
	}
	count := int64(n)
	triangle := count * (count - 1) / 2

	step := defaultStepUnits
	first := int64(0)
	for i := 0; i <= MaxHalvings && step > 0; i++ {
		if first = (hundredUnits - step*triangle) / count; first > 0 {
			break
		}
		step /= 2
	}
	if first <= 0 || step <= 0 {
		return nil, xerrors.Newf(fleet.CodeInfeasiblePartition,
			"no positive first term for %d arithmetic shares", n)
	}

	remainder := hundredUnits - step*triangle - first*count
	values := make([]decimal.Decimal, n)
	for i := range values {
		units := first + step*int64(i)
		if int64(n-i) <= remainder {
			units++
		}
		values[i] = decimal.New(units, -Precision)
	}
	return values, nil
}

// RandomPercentages returns n percentages within [min, max] summing to
// exactly 100.
func (g *Generator) RandomPercentages(n int, min, max decimal.Decimal) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, xerrors.New(fleet.CodeInfeasiblePartition, "share count must be positive")
	}
	if min.IsNegative() || min.GreaterThan(max) {
		return nil, xerrors.Newf(fleet.CodeInfeasiblePartition, "invalid bounds [%s, %s]", min, max)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	values := make([]decimal.Decimal, n)
	remaining := hundred
	for i := 0; i < n; i++ {
		others := decimal.NewFromInt(int64(n - i - 1))
		lo := decimal.Max(min, remaining.Sub(others.Mul(max)))
		hi := decimal.Min(max, remaining.Sub(others.Mul(min)))
		if lo.GreaterThan(hi) {
			return nil, xerrors.Newf(fleet.CodeInfeasiblePartition,
				"cannot split 100 into %d shares within [%s, %s]", n, min, max)
		}
		var value decimal.Decimal
		if i == n-1 {
			value = remaining
		} else {
			span := hi.Sub(lo)
			value = lo.Add(span.Mul(decimal.NewFromFloat(g.rng.Float64()))).Round(Precision)
			value = decimal.Min(hi, decimal.Max(lo, value))
		}
		values[i] = value
		remaining = remaining.Sub(value)
	}
	correctResidual(values)
	return values, nil
}

// correctResidual folds the rounding error into the last element so the
// sequence sums to exactly 100.
func correctResidual(values []decimal.Decimal) {
	if len(values) == 0 {
		return
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	last := len(values) - 1
	values[last] = values[last].Add(hundred.Sub(sum))
}

// Sum adds up decimal shares.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
