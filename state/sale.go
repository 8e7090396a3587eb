package state

import (
	"fmt"
	"math/big"

	"tokensale/native/sale"
)

// Stored mirrors of the sale records. Signed timestamps are widened to
// uint64 for RLP; ladders are stored as slices so the on-disk shape stays
// decodable if the tier count ever changes.

type storedSaleState struct {
	MerkleRoot          [32]byte
	ActiveTierIndex     uint8
	TotalFundsCollected *big.Int
	Paused              bool
}

type storedSchedule struct {
	ComingSoonEnd uint64
	OnlyKycEnd    uint64
	PurchaseEnd   uint64
}

type storedParameters struct {
	MinDeposit          *big.Int
	MaxDepositPerWallet *big.Int
}

type storedTier struct {
	Price         *big.Int
	CumulativeCap *big.Int
}

type storedDeposit struct {
	AmountDeposited *big.Int
	PurchasedTokens *big.Int
}

var (
	saleStateKey      = []byte("sale/state")
	saleScheduleKey   = []byte("sale/schedule")
	saleParametersKey = []byte("sale/parameters")
	saleTiersKey      = []byte("sale/tiers")
	saleDepositPrefix = []byte("sale/deposit/")
)

func depositKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(saleDepositPrefix)+len(addr))
	buf = append(buf, saleDepositPrefix...)
	buf = append(buf, addr[:]...)
	return buf
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// SaleStateGet loads the global sale record.
func (t *Txn) SaleStateGet() (*sale.State, bool, error) {
	var stored storedSaleState
	ok, err := t.KVGet(saleStateKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.State{
		MerkleRoot:          stored.MerkleRoot,
		ActiveTierIndex:     stored.ActiveTierIndex,
		TotalFundsCollected: orZero(stored.TotalFundsCollected),
		Paused:              stored.Paused,
	}, true, nil
}

// SaleStatePut persists the global sale record.
func (t *Txn) SaleStatePut(st *sale.State) error {
	if st == nil {
		return fmt.Errorf("state: nil sale state")
	}
	return t.KVPut(saleStateKey, &storedSaleState{
		MerkleRoot:          st.MerkleRoot,
		ActiveTierIndex:     st.ActiveTierIndex,
		TotalFundsCollected: orZero(st.TotalFundsCollected),
		Paused:              st.Paused,
	})
}

// ScheduleGet loads the phase boundaries.
func (t *Txn) ScheduleGet() (*sale.Schedule, bool, error) {
	var stored storedSchedule
	ok, err := t.KVGet(saleScheduleKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.Schedule{
		ComingSoonEnd: int64(stored.ComingSoonEnd),
		OnlyKycEnd:    int64(stored.OnlyKycEnd),
		PurchaseEnd:   int64(stored.PurchaseEnd),
	}, true, nil
}

// SchedulePut persists the phase boundaries.
func (t *Txn) SchedulePut(s *sale.Schedule) error {
	if s == nil {
		return fmt.Errorf("state: nil schedule")
	}
	if s.ComingSoonEnd < 0 || s.OnlyKycEnd < 0 || s.PurchaseEnd < 0 {
		return fmt.Errorf("state: negative schedule boundary")
	}
	return t.KVPut(saleScheduleKey, &storedSchedule{
		ComingSoonEnd: uint64(s.ComingSoonEnd),
		OnlyKycEnd:    uint64(s.OnlyKycEnd),
		PurchaseEnd:   uint64(s.PurchaseEnd),
	})
}

// ParametersGet loads the per-wallet deposit bounds.
func (t *Txn) ParametersGet() (*sale.Parameters, bool, error) {
	var stored storedParameters
	ok, err := t.KVGet(saleParametersKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.Parameters{
		MinDeposit:          orZero(stored.MinDeposit),
		MaxDepositPerWallet: orZero(stored.MaxDepositPerWallet),
	}, true, nil
}

// ParametersPut persists the per-wallet deposit bounds.
func (t *Txn) ParametersPut(p *sale.Parameters) error {
	if p == nil {
		return fmt.Errorf("state: nil parameters")
	}
	return t.KVPut(saleParametersKey, &storedParameters{
		MinDeposit:          orZero(p.MinDeposit),
		MaxDepositPerWallet: orZero(p.MaxDepositPerWallet),
	})
}

// TiersGet loads the price ladder.
func (t *Txn) TiersGet() (*sale.TierLadder, bool, error) {
	var stored []storedTier
	ok, err := t.KVGet(saleTiersKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(stored) != sale.TierCount {
		return nil, false, fmt.Errorf("state: corrupt tier ladder: %d entries", len(stored))
	}
	ladder := &sale.TierLadder{}
	for i, tier := range stored {
		ladder.Tiers[i] = sale.Tier{
			Price:         orZero(tier.Price),
			CumulativeCap: orZero(tier.CumulativeCap),
		}
	}
	return ladder, true, nil
}

// TiersPut persists the price ladder.
func (t *Txn) TiersPut(l *sale.TierLadder) error {
	if l == nil {
		return fmt.Errorf("state: nil tier ladder")
	}
	stored := make([]storedTier, sale.TierCount)
	for i, tier := range l.Tiers {
		stored[i] = storedTier{
			Price:         orZero(tier.Price),
			CumulativeCap: orZero(tier.CumulativeCap),
		}
	}
	return t.KVPut(saleTiersKey, stored)
}

// UserDepositGet loads the per-identity ledger entry.
func (t *Txn) UserDepositGet(addr [20]byte) (*sale.UserDeposit, bool, error) {
	var stored storedDeposit
	ok, err := t.KVGet(depositKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.UserDeposit{
		AmountDeposited: orZero(stored.AmountDeposited),
		PurchasedTokens: orZero(stored.PurchasedTokens),
	}, true, nil
}

// UserDepositPut persists the per-identity ledger entry.
func (t *Txn) UserDepositPut(addr [20]byte, dep *sale.UserDeposit) error {
	if dep == nil {
		return fmt.Errorf("state: nil user deposit")
	}
	return t.KVPut(depositKey(addr), &storedDeposit{
		AmountDeposited: orZero(dep.AmountDeposited),
		PurchasedTokens: orZero(dep.PurchasedTokens),
	})
}
