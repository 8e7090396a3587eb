package sale

import (
	"fmt"
	"math/big"
)

// TierCount is the fixed size of the price ladder.
const TierCount = 4

// Tier is one pricing bracket of the sale. Price is scaled by 1e18; the
// cumulative cap is expressed in 6-decimal payment units and covers this tier
// together with every tier below it.
type Tier struct {
	Price         *big.Int
	CumulativeCap *big.Int
}

// TierLadder is the ordered table of the four sale tiers.
type TierLadder struct {
	Tiers [TierCount]Tier
}

// Validate enforces the structural ladder invariants: positive prices and
// strictly increasing cumulative caps. Price ordering between neighbours is a
// business convention, not a structural rule.
func (l *TierLadder) Validate() error {
	if l == nil {
		return fmt.Errorf("sale: nil tier ladder")
	}
	prev := big.NewInt(0)
	for i, tier := range l.Tiers {
		if tier.Price == nil || tier.Price.Sign() <= 0 {
			return fmt.Errorf("sale: tier %d price must be positive", i)
		}
		if tier.CumulativeCap == nil || tier.CumulativeCap.Cmp(prev) <= 0 {
			return fmt.Errorf("sale: tier %d cumulative cap must exceed tier %d", i, i-1)
		}
		prev = tier.CumulativeCap
	}
	return nil
}

// AllZero reports whether every field of every tier is zero or nil. A ladder
// update carrying such a payload is rejected as a garbage call.
func (l *TierLadder) AllZero() bool {
	if l == nil {
		return true
	}
	for _, tier := range l.Tiers {
		if tier.Price != nil && tier.Price.Sign() != 0 {
			return false
		}
		if tier.CumulativeCap != nil && tier.CumulativeCap.Sign() != 0 {
			return false
		}
	}
	return true
}

// GlobalCap returns the funding cap of the whole sale, defined as the
// cumulative cap of the final tier.
func (l *TierLadder) GlobalCap() *big.Int {
	if l == nil || l.Tiers[TierCount-1].CumulativeCap == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.Tiers[TierCount-1].CumulativeCap)
}

// Clone returns a deep copy of the ladder.
func (l *TierLadder) Clone() *TierLadder {
	if l == nil {
		return nil
	}
	clone := &TierLadder{}
	for i, tier := range l.Tiers {
		clone.Tiers[i] = Tier{
			Price:         cloneBigInt(tier.Price),
			CumulativeCap: cloneBigInt(tier.CumulativeCap),
		}
	}
	return clone
}

// Schedule holds the three phase boundaries as unix seconds.
type Schedule struct {
	ComingSoonEnd int64
	OnlyKycEnd    int64
	PurchaseEnd   int64
}

// Validate enforces strict chronological ordering of the boundaries.
func (s *Schedule) Validate() error {
	if s == nil {
		return fmt.Errorf("sale: nil schedule")
	}
	if s.ComingSoonEnd <= 0 {
		return fmt.Errorf("sale: coming-soon end must be positive")
	}
	if s.OnlyKycEnd <= s.ComingSoonEnd {
		return fmt.Errorf("sale: kyc end must follow coming-soon end")
	}
	if s.PurchaseEnd <= s.OnlyKycEnd {
		return fmt.Errorf("sale: purchase end must follow kyc end")
	}
	return nil
}

// Parameters bounds an individual wallet's participation. Both values are in
// 6-decimal payment units.
type Parameters struct {
	MinDeposit          *big.Int
	MaxDepositPerWallet *big.Int
}

// Validate enforces min < max and positive bounds.
func (p *Parameters) Validate() error {
	if p == nil {
		return fmt.Errorf("sale: nil parameters")
	}
	if p.MinDeposit == nil || p.MinDeposit.Sign() <= 0 {
		return fmt.Errorf("sale: minimum deposit must be positive")
	}
	if p.MaxDepositPerWallet == nil || p.MaxDepositPerWallet.Cmp(p.MinDeposit) <= 0 {
		return fmt.Errorf("sale: per-wallet maximum must exceed the minimum deposit")
	}
	return nil
}

// UserDeposit is the per-identity ledger entry. Both counters only ever grow
// for the lifetime of the sale. AmountDeposited is in 6-decimal payment
// units, PurchasedTokens in 18-decimal token units.
type UserDeposit struct {
	AmountDeposited *big.Int
	PurchasedTokens *big.Int
}

// Clone returns a deep copy of the entry.
func (u *UserDeposit) Clone() *UserDeposit {
	if u == nil {
		return nil
	}
	return &UserDeposit{
		AmountDeposited: cloneBigInt(u.AmountDeposited),
		PurchasedTokens: cloneBigInt(u.PurchasedTokens),
	}
}

func ensureUserDeposit(u *UserDeposit) *UserDeposit {
	if u == nil {
		return &UserDeposit{AmountDeposited: big.NewInt(0), PurchasedTokens: big.NewInt(0)}
	}
	if u.AmountDeposited == nil {
		u.AmountDeposited = big.NewInt(0)
	}
	if u.PurchasedTokens == nil {
		u.PurchasedTokens = big.NewInt(0)
	}
	return u
}

// State is the global mutable record of the sale. ActiveTierIndex and
// TotalFundsCollected are monotonically non-decreasing; TotalFundsCollected
// never exceeds the ladder's global cap.
type State struct {
	MerkleRoot          [32]byte
	ActiveTierIndex     uint8
	TotalFundsCollected *big.Int
	Paused              bool
}

// IsPaused implements the pause view consulted by deposit guards.
func (s *State) IsPaused() bool {
	return s != nil && s.Paused
}

// Clone returns a deep copy of the sale state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalFundsCollected = cloneBigInt(s.TotalFundsCollected)
	return &clone
}

func ensureState(s *State) *State {
	if s == nil {
		return &State{TotalFundsCollected: big.NewInt(0)}
	}
	if s.TotalFundsCollected == nil {
		s.TotalFundsCollected = big.NewInt(0)
	}
	return s
}

// Receipt summarises the effects of a successful deposit so callers need no
// follow-up query.
type Receipt struct {
	DepositedAmount *big.Int
	TokensPurchased *big.Int
	Leftover        *big.Int
	TierIndex       uint8
	TotalCollected  *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
