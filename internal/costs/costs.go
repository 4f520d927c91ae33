// Package costs models the execution cost terms shared by the Decision
// Engine's net-edge gate and the Position Manager's
// realized-PnL accounting: half-spread, slippage,
// fees, and a cancel/requote penalty, combined into round-trip costs.
package costs

// Model holds the cost-model constants; defaults are conservative placeholders
// the operator is expected to tune against observed venue fills.
type Model struct {
	FeeRate              float64 // fraction of notional charged by the venue
	CancelRequotePenalty float64 // fixed per-trade penalty for cancel/requote risk
}

// DefaultModel returns reasonable defaults.
func DefaultModel() Model {
	return Model{
		FeeRate:              0.01,
		CancelRequotePenalty: 0.005,
	}
}

// HalfSpread returns half the bid-ask spread as a fraction of mid price.
func HalfSpread(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / 2 / mid
}

// SlippageBucket buckets displayed liquidity into a slippage estimate,
// rewarding deep books with lower expected slippage.
func SlippageBucket(liquidity float64) float64 {
	switch {
	case liquidity >= 10000:
		return 0.002
	case liquidity >= 2000:
		return 0.006
	case liquidity >= 500:
		return 0.015
	default:
		return 0.035
	}
}

// EntryCosts computes the one-way expected cost fraction used in the
// net-edge gate: half_spread + slippage + fees + cancel/requote penalty.
func (m Model) EntryCosts(bid, ask, liquidity float64) float64 {
	return HalfSpread(bid, ask) + SlippageBucket(liquidity) + m.FeeRate + m.CancelRequotePenalty
}

// RoundTripCosts combines entry and exit liquidity into the two-way cost used
// to compute realized_net from realized_gross.
func (m Model) RoundTripCosts(entryLiquidity, exitLiquidity, entryNotional, exitNotional float64) float64 {
	entry := SlippageBucket(entryLiquidity)*entryNotional + m.FeeRate*entryNotional
	exit := SlippageBucket(exitLiquidity)*exitNotional + m.FeeRate*exitNotional
	return entry + exit + m.CancelRequotePenalty*2
}
