package partition

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

func TestBoundedIntegersInfeasible(t *testing.T) {
	g := New(1)

	_, err := g.BoundedIntegers(5, 100, 1, 10)
	require.Error(t, err)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))

	_, err = g.BoundedIntegers(20, 10, 1, 10)
	require.Error(t, err)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))

	_, err = g.BoundedIntegers(3, 10, 5, 4)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))

	_, err = g.BoundedIntegers(0, 10, 1, 4)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
}

func TestBoundedIntegersSumAndBounds(t *testing.T) {
	cases := []struct {
		name            string
		n               int
		total, min, max uint64
	}{
		{name: "loose", n: 20, total: 100, min: 1, max: 10},
		{name: "tight upper", n: 10, total: 100, min: 1, max: 10},
		{name: "tight lower", n: 10, total: 10, min: 1, max: 10},
		{name: "single", n: 1, total: 7, min: 0, max: 7},
		{name: "zero min", n: 50, total: 1_000_000_000, min: 0, max: 1_000_000_000},
		{name: "lamports", n: 8, total: 2_500_000_000, min: 100_000_000, max: 500_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := New(42)
			for round := 0; round < 50; round++ {
				shares, err := g.BoundedIntegers(tc.n, tc.total, tc.min, tc.max)
				require.NoError(t, err)
				require.Len(t, shares, tc.n)

				var sum uint64
				for _, s := range shares {
					assert.GreaterOrEqual(t, s, tc.min)
					assert.LessOrEqual(t, s, tc.max)
					sum += s
				}
				assert.Equal(t, tc.total, sum)
			}
		})
	}
}

func TestBoundedIntegersHugeBoundsDoNotOverflow(t *testing.T) {
	g := New(3)
	shares, err := g.BoundedIntegers(4, 1000, 0, ^uint64(0))
	require.NoError(t, err)

	var sum uint64
	for _, s := range shares {
		sum += s
	}
	assert.Equal(t, uint64(1000), sum)

	for _, seed := range []uint64{0, 5, 99} {
		shares, err := New(seed).BoundedIntegers(3, ^uint64(0), 0, ^uint64(0))
		require.NoError(t, err, "seed %d", seed)
		require.Len(t, shares, 3)
		var total uint64
		for _, s := range shares {
			total += s
		}
		assert.Equal(t, ^uint64(0), total, "seed %d", seed)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a, err := New(7).BoundedIntegers(20, 100, 1, 10)
	require.NoError(t, err)
	b, err := New(7).BoundedIntegers(20, 100, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	pa, err := New(9).RandomPercentages(12, decimal.NewFromInt(1), decimal.NewFromInt(10))
	require.NoError(t, err)
	pb, err := New(9).RandomPercentages(12, decimal.NewFromInt(1), decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Len(t, pb, len(pa))
	for i := range pa {
		assert.True(t, pa[i].Equal(pb[i]), "index %d: %s != %s", i, pa[i], pb[i])
	}
}

func TestUniqueArithmeticPercentages(t *testing.T) {
	g := New(0)
	for _, n := range []int{1, 2, 3, 10, 100, 141, 142, 500, 1000} {
		values, err := g.UniqueArithmeticPercentages(n)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, values, n)

		assert.True(t, Sum(values).Equal(decimal.NewFromInt(100)), "n=%d sum=%s", n, Sum(values))
		assert.True(t, values[0].IsPositive(), "n=%d first=%s", n, values[0])
		for i := 1; i < n; i++ {
			assert.True(t, values[i].GreaterThan(values[i-1]), "n=%d index %d not increasing", n, i)
		}
	}
}

func TestUniqueArithmeticPercentagesLargeFleets(t *testing.T) {
	g := New(0)
	hundred := decimal.NewFromInt(100)
	for n := 1; n <= 5000; n++ {
		values, err := g.UniqueArithmeticPercentages(n)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, values, n)
		require.True(t, Sum(values).Equal(hundred), "n=%d sum=%s", n, Sum(values))
		require.True(t, values[0].IsPositive(), "n=%d first=%s", n, values[0])
		for i := 1; i < n; i++ {
			if !values[i].GreaterThan(values[i-1]) {
				t.Fatalf("n=%d index %d not increasing: %s <= %s", n, i, values[i], values[i-1])
			}
		}
	}

	// 14141 is the largest fleet that still fits with a one-unit step.
	values, err := g.UniqueArithmeticPercentages(14_141)
	require.NoError(t, err)
	assert.True(t, Sum(values).Equal(hundred))
	assert.Equal(t, "0.000001", values[1].Sub(values[0]).String())

	_, err = g.UniqueArithmeticPercentages(14_142)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
}

func TestUniqueArithmeticPercentagesSmallFleet(t *testing.T) {
	values, err := New(0).UniqueArithmeticPercentages(3)
	require.NoError(t, err)

	// d = 0.01, a = (100 - 0.03) / 3
	assert.Equal(t, "33.323333", values[0].String())
	assert.Equal(t, "33.333333", values[1].String())
	assert.Equal(t, "33.343334", values[2].String())
}

func TestUniqueArithmeticPercentagesTooManyShares(t *testing.T) {
	_, err := New(0).UniqueArithmeticPercentages(200_000)
	require.Error(t, err)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
}

func TestRandomPercentages(t *testing.T) {
	min := decimal.NewFromInt(1)
	max := decimal.NewFromInt(10)
	g := New(11)
	for _, n := range []int{10, 11, 25, 99, 100} {
		for round := 0; round < 20; round++ {
			values, err := g.RandomPercentages(n, min, max)
			require.NoError(t, err, "n=%d", n)
			require.Len(t, values, n)
			assert.True(t, Sum(values).Equal(decimal.NewFromInt(100)), "n=%d sum=%s", n, Sum(values))
			for i, v := range values {
				assert.False(t, v.LessThan(min), "n=%d index %d below min: %s", n, i, v)
				assert.False(t, v.GreaterThan(max), "n=%d index %d above max: %s", n, i, v)
			}
		}
	}
}

func TestRandomPercentagesInfeasible(t *testing.T) {
	g := New(5)

	_, err := g.RandomPercentages(5, decimal.NewFromInt(1), decimal.NewFromInt(10))
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))

	_, err = g.RandomPercentages(101, decimal.NewFromInt(1), decimal.NewFromInt(10))
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))

	_, err = g.RandomPercentages(10, decimal.NewFromInt(5), decimal.NewFromInt(2))
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
}
