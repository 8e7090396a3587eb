package state

import (
	"fmt"
	"math/big"

	"tokensale/native/access"
	"tokensale/native/sale"
)

var genesisAppliedKey = []byte("genesis/applied")

// GenesisBalance seeds an initial payment-asset balance.
type GenesisBalance struct {
	Address [20]byte
	Symbol  string
	Amount  *big.Int
}

// GenesisState is the fully validated deployment description of the sale:
// schedule, bounds, ladder, whitelist root, role grants and any initial
// balances.
type GenesisState struct {
	Schedule   *sale.Schedule
	Parameters *sale.Parameters
	Tiers      *sale.TierLadder
	MerkleRoot [32]byte
	Roles      map[string][][20]byte
	Balances   []GenesisBalance
}

// SeedGenesis writes the deployment state on first boot. The operation is
// idempotent: once the boot marker exists subsequent calls do nothing, so a
// restarted service never clobbers a live sale.
func (m *Manager) SeedGenesis(spec *GenesisState) error {
	if spec == nil {
		return fmt.Errorf("state: nil genesis")
	}
	txn, err := m.Begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	var applied bool
	if ok, err := txn.KVGet(genesisAppliedKey, &applied); err != nil {
		return err
	} else if ok && applied {
		return nil
	}

	if err := spec.Schedule.Validate(); err != nil {
		return err
	}
	if err := spec.Parameters.Validate(); err != nil {
		return err
	}
	if err := spec.Tiers.Validate(); err != nil {
		return err
	}
	if err := txn.SchedulePut(spec.Schedule); err != nil {
		return err
	}
	if err := txn.ParametersPut(spec.Parameters); err != nil {
		return err
	}
	if err := txn.TiersPut(spec.Tiers); err != nil {
		return err
	}
	if err := txn.SaleStatePut(&sale.State{
		MerkleRoot:          spec.MerkleRoot,
		TotalFundsCollected: big.NewInt(0),
	}); err != nil {
		return err
	}

	for role, members := range spec.Roles {
		for _, member := range members {
			if err := access.SetRole(txn, role, member); err != nil {
				return err
			}
		}
	}

	ledger := txn.Token()
	for _, balance := range spec.Balances {
		if err := ledger.SeedBalance(balance.Address, balance.Symbol, balance.Amount); err != nil {
			return err
		}
	}

	if err := txn.KVPut(genesisAppliedKey, true); err != nil {
		return err
	}
	return txn.Commit()
}
