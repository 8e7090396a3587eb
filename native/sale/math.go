package sale

import "math/big"

// Fixed-point scales used by the purchase arithmetic. Payment amounts carry 6
// decimals, tier prices are scaled by 1e18 and token outputs carry 18
// decimals. Dividing a 6-decimal amount by an 1e18-scaled price after
// multiplying by priceScale yields a 6-decimal token quantity; outputScale
// lifts it to the 18-decimal token unit.
var (
	priceScale  = big.NewInt(1_000_000_000_000_000_000) // 1e18
	outputScale = big.NewInt(1_000_000_000_000)         // 1e12
)

// minTransactionAmount is the absolute floor for a single deposit, expressed
// in 6-decimal payment units (one whole unit of the payment asset).
var minTransactionAmount = big.NewInt(1_000_000)

// Quote is the result of the tier-spanning purchase computation. Tokens is in
// 18-decimal token units, Leftover in 6-decimal payment units. TierIndex is
// the ladder position after applying the payment.
type Quote struct {
	Tokens    *big.Int
	Leftover  *big.Int
	TierIndex uint8
}

// tokensFromPayment converts a 6-decimal payment slice priced at an
// 1e18-scaled price into 18-decimal token units. Division is truncating;
// residual fractional value is never refunded.
func tokensFromPayment(amount, price *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, priceScale)
	out.Quo(out, price)
	out.Mul(out, outputScale)
	return out
}

// computeTokens splits a payment across the tier ladder starting from the
// active tier. It consumes the active tier's remaining capacity first, then
// walks forward through subsequent tiers until the payment is exhausted or
// the ladder runs out; any unconsumable remainder is reported as leftover
// rather than assumed away. Each slice is converted at its own tier price
// with truncating division.
func computeTokens(amount, totalCollected *big.Int, activeTier uint8, ladder *TierLadder) (*Quote, error) {
	if ladder == nil {
		return nil, &StateInvariantError{Detail: "tier ladder not configured"}
	}
	if int(activeTier) >= TierCount {
		return nil, &StateInvariantError{Detail: "active tier index out of range"}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, &StateInvariantError{Detail: "non-positive purchase amount"}
	}
	collected := cloneBigInt(totalCollected)

	active := ladder.Tiers[activeTier]
	remainingInActive := new(big.Int).Sub(active.CumulativeCap, collected)
	if remainingInActive.Sign() < 0 {
		return nil, &StateInvariantError{Detail: "collected funds exceed active tier cap"}
	}

	// Single-tier case: the payment fits in the active tier. An exact fill
	// keeps the index unchanged; advancement happens on the next deposit.
	if amount.Cmp(remainingInActive) <= 0 {
		return &Quote{
			Tokens:    tokensFromPayment(amount, active.Price),
			Leftover:  big.NewInt(0),
			TierIndex: activeTier,
		}, nil
	}

	tokens := tokensFromPayment(remainingInActive, active.Price)
	remaining := new(big.Int).Sub(amount, remainingInActive)
	index := activeTier

	for i := int(activeTier) + 1; i < TierCount && remaining.Sign() > 0; i++ {
		tier := ladder.Tiers[i]
		capacity := new(big.Int).Sub(tier.CumulativeCap, ladder.Tiers[i-1].CumulativeCap)
		slice := remaining
		if slice.Cmp(capacity) > 0 {
			slice = capacity
		}
		tokens.Add(tokens, tokensFromPayment(slice, tier.Price))
		remaining = new(big.Int).Sub(remaining, slice)
		index = uint8(i)
	}

	return &Quote{
		Tokens:    tokens,
		Leftover:  remaining,
		TierIndex: index,
	}, nil
}
