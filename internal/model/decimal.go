package model

import "github.com/yanun0323/decimal"

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if b.LessThan(a) {
		return b
	}
	return a
}

// Float converts d to the nearest float64.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
