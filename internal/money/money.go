// Package money provides decimal-safe arithmetic for the cash boundary
// (stakes, fills, realized PnL, balance). Probability and edge math stays
// float64 throughout the rest of the engine; only where cash
// actually changes hands do we route through shopspring/decimal to avoid
// float drift accumulating over many trades.
package money

import "github.com/shopspring/decimal"

// Round2 rounds a float64 cash amount to 2 decimal places via decimal.Decimal,
// matching how a real venue settles fills in cents.
func Round2(amount float64) float64 {
	d := decimal.NewFromFloat(amount).Round(2)
	f, _ := d.Float64()
	return f
}

// Stake computes entry_size * entry_price in decimal and rounds it to 6
// decimal places, so `entry_size * entry_price = stake` holds to within 1e-6
// for every opened position.
func Stake(entrySize, entryPrice float64) float64 {
	d := decimal.NewFromFloat(entrySize).Mul(decimal.NewFromFloat(entryPrice))
	f, _ := d.Round(6).Float64()
	return f
}

// ApplyDelta adds a signed delta to a balance with decimal rounding, used by
// the Position Manager when realized PnL updates the account balance.
func ApplyDelta(balance, delta float64) float64 {
	d := decimal.NewFromFloat(balance).Add(decimal.NewFromFloat(delta))
	f, _ := d.Round(6).Float64()
	return f
}
