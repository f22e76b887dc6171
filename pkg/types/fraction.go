package types

import "fmt"

// Fraction is a ratio stored in basis points so cap arithmetic stays exact:
// 10000 basis points == 100%. Serialized as the raw basis-point integer.
type Fraction uint32

const (
	// FractionOne is the whole (100%).
	FractionOne Fraction = 10000
)

// FractionFromFloat scales a human ratio like 0.25 into basis points,
// rounding to the nearest point.
func FractionFromFloat(v float64) Fraction {
	return Fraction(v*float64(FractionOne) + 0.5)
}

// Float converts back for display and events.
func (f Fraction) Float() float64 {
	return float64(f) / float64(FractionOne)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d.%02d%%", f/100, f%100)
}
