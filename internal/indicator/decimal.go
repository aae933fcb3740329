package indicator

import (
	"math"

	"github.com/shopspring/decimal"
)

// divScale is the number of fractional digits kept after every division.
const divScale int32 = 16

// sqrtIterations bounds the Newton refinement.
const sqrtIterations = 64

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
	fifty   = decimal.NewFromInt(50)
)

func div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, divScale)
}

func divN(a decimal.Decimal, n int) decimal.Decimal {
	return a.DivRound(decimal.NewFromInt(int64(n)), divScale)
}

// sqrt returns the square root of v rounded to divScale digits. The float
// estimate only seeds Newton's method; the result is decided in decimal.
func sqrt(v decimal.Decimal) decimal.Decimal {
	if v.Sign() <= 0 {
		return decimal.Zero
	}
	work := divScale + 4
	x := decimal.NewFromFloat(math.Sqrt(v.InexactFloat64()))
	if x.Sign() <= 0 {
		x = v
	}
	for i := 0; i < sqrtIterations; i++ {
		next := x.Add(v.DivRound(x, work)).DivRound(two, work)
		if next.Equal(x) {
			break
		}
		x = next
	}
	return x.Round(divScale)
}

func maxDecimal(vals ...decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}
