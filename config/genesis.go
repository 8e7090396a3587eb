package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"tokensale/crypto"
	"tokensale/native/access"
	"tokensale/native/sale"
	"tokensale/state"
)

// Genesis describes the sale at deployment time. Amounts are decimal strings:
// payment quantities in 6-decimal units, prices scaled by 1e18.
type Genesis struct {
	Treasury     string            `toml:"Treasury"`
	Vault        string            `toml:"Vault"`
	PaymentToken string            `toml:"PaymentToken"`
	MerkleRoot   string            `toml:"MerkleRoot"`
	Schedule     GenesisSchedule   `toml:"Schedule"`
	Parameters   GenesisParameters `toml:"Parameters"`
	Tiers        []GenesisTier     `toml:"Tiers"`
	Roles        GenesisRoles      `toml:"Roles"`
	Balances     []GenesisBalance  `toml:"Balances"`
}

type GenesisSchedule struct {
	ComingSoonEnd int64 `toml:"ComingSoonEnd"`
	OnlyKycEnd    int64 `toml:"OnlyKycEnd"`
	PurchaseEnd   int64 `toml:"PurchaseEnd"`
}

type GenesisParameters struct {
	MinDeposit          string `toml:"MinDeposit"`
	MaxDepositPerWallet string `toml:"MaxDepositPerWallet"`
}

type GenesisTier struct {
	Price         string `toml:"Price"`
	CumulativeCap string `toml:"CumulativeCap"`
}

type GenesisRoles struct {
	SuperAdmin []string `toml:"SuperAdmin"`
	Admin      []string `toml:"Admin"`
	Operator   []string `toml:"Operator"`
	Minter     []string `toml:"Minter"`
}

type GenesisBalance struct {
	Address string `toml:"Address"`
	Symbol  string `toml:"Symbol"`
	Amount  string `toml:"Amount"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	gen := &Genesis{}
	if _, err := toml.DecodeFile(path, gen); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	return gen, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("genesis: %s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("genesis: %s must be a non-negative decimal string", field)
	}
	return amount, nil
}

func parseAddress(field, value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("genesis: %s: %w", field, err)
	}
	return addr.Array(), nil
}

func parseRoot(value string) ([32]byte, error) {
	var root [32]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if trimmed == "" {
		return root, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return root, fmt.Errorf("genesis: merkle root: %w", err)
	}
	if len(decoded) != 32 {
		return root, fmt.Errorf("genesis: merkle root must be 32 bytes, got %d", len(decoded))
	}
	copy(root[:], decoded)
	return root, nil
}

// SaleSchedule converts the genesis schedule to the engine type.
func (g *Genesis) SaleSchedule() *sale.Schedule {
	return &sale.Schedule{
		ComingSoonEnd: g.Schedule.ComingSoonEnd,
		OnlyKycEnd:    g.Schedule.OnlyKycEnd,
		PurchaseEnd:   g.Schedule.PurchaseEnd,
	}
}

// SaleParameters converts the genesis bounds to the engine type.
func (g *Genesis) SaleParameters() (*sale.Parameters, error) {
	minDeposit, err := parseAmount("Parameters.MinDeposit", g.Parameters.MinDeposit)
	if err != nil {
		return nil, err
	}
	maxDeposit, err := parseAmount("Parameters.MaxDepositPerWallet", g.Parameters.MaxDepositPerWallet)
	if err != nil {
		return nil, err
	}
	return &sale.Parameters{MinDeposit: minDeposit, MaxDepositPerWallet: maxDeposit}, nil
}

// SaleTiers converts the genesis ladder to the engine type.
func (g *Genesis) SaleTiers() (*sale.TierLadder, error) {
	if len(g.Tiers) != sale.TierCount {
		return nil, fmt.Errorf("genesis: expected %d tiers, got %d", sale.TierCount, len(g.Tiers))
	}
	ladder := &sale.TierLadder{}
	for i, tier := range g.Tiers {
		price, err := parseAmount(fmt.Sprintf("Tiers[%d].Price", i), tier.Price)
		if err != nil {
			return nil, err
		}
		cumulativeCap, err := parseAmount(fmt.Sprintf("Tiers[%d].CumulativeCap", i), tier.CumulativeCap)
		if err != nil {
			return nil, err
		}
		ladder.Tiers[i] = sale.Tier{Price: price, CumulativeCap: cumulativeCap}
	}
	return ladder, nil
}

// TreasuryAddress returns the decoded treasury identity.
func (g *Genesis) TreasuryAddress() ([20]byte, error) {
	return parseAddress("Treasury", g.Treasury)
}

// VaultAddress returns the decoded engine vault identity.
func (g *Genesis) VaultAddress() ([20]byte, error) {
	return parseAddress("Vault", g.Vault)
}

func parseMembers(field string, encoded []string) ([][20]byte, error) {
	members := make([][20]byte, 0, len(encoded))
	for i, entry := range encoded {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), entry)
		if err != nil {
			return nil, err
		}
		members = append(members, addr)
	}
	return members, nil
}

// Validate checks the genesis invariants: strictly ordered schedule, strictly
// increasing caps, min < max deposit, non-zero treasury and at least one
// super admin.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis: nil spec")
	}
	if strings.TrimSpace(g.PaymentToken) == "" {
		return fmt.Errorf("genesis: payment token symbol required")
	}
	treasury, err := g.TreasuryAddress()
	if err != nil {
		return err
	}
	if treasury == ([20]byte{}) {
		return fmt.Errorf("genesis: treasury must not be the zero address")
	}
	if _, err := g.VaultAddress(); err != nil {
		return err
	}
	if err := g.SaleSchedule().Validate(); err != nil {
		return err
	}
	params, err := g.SaleParameters()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	tiers, err := g.SaleTiers()
	if err != nil {
		return err
	}
	if err := tiers.Validate(); err != nil {
		return err
	}
	if _, err := parseRoot(g.MerkleRoot); err != nil {
		return err
	}
	if len(g.Roles.SuperAdmin) == 0 {
		return fmt.Errorf("genesis: at least one super admin required")
	}
	roleSets := map[string][]string{
		access.RoleSuperAdmin: g.Roles.SuperAdmin,
		access.RoleAdmin:      g.Roles.Admin,
		access.RoleOperator:   g.Roles.Operator,
		access.RoleMinter:     g.Roles.Minter,
	}
	for role, encoded := range roleSets {
		if _, err := parseMembers(role, encoded); err != nil {
			return err
		}
	}
	for i, balance := range g.Balances {
		if _, err := parseAddress(fmt.Sprintf("Balances[%d].Address", i), balance.Address); err != nil {
			return err
		}
		if strings.TrimSpace(balance.Symbol) == "" {
			return fmt.Errorf("genesis: Balances[%d].Symbol required", i)
		}
		if _, err := parseAmount(fmt.Sprintf("Balances[%d].Amount", i), balance.Amount); err != nil {
			return err
		}
	}
	return nil
}

// State converts the validated genesis into the seedable deployment state.
func (g *Genesis) State() (*state.GenesisState, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	params, err := g.SaleParameters()
	if err != nil {
		return nil, err
	}
	tiers, err := g.SaleTiers()
	if err != nil {
		return nil, err
	}
	root, err := parseRoot(g.MerkleRoot)
	if err != nil {
		return nil, err
	}
	roles := make(map[string][][20]byte)
	roleSets := map[string][]string{
		access.RoleSuperAdmin: g.Roles.SuperAdmin,
		access.RoleAdmin:      g.Roles.Admin,
		access.RoleOperator:   g.Roles.Operator,
		access.RoleMinter:     g.Roles.Minter,
	}
	for role, encoded := range roleSets {
		members, err := parseMembers(role, encoded)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			roles[role] = members
		}
	}
	balances := make([]state.GenesisBalance, 0, len(g.Balances))
	for i, balance := range g.Balances {
		addr, err := parseAddress(fmt.Sprintf("Balances[%d].Address", i), balance.Address)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(fmt.Sprintf("Balances[%d].Amount", i), balance.Amount)
		if err != nil {
			return nil, err
		}
		balances = append(balances, state.GenesisBalance{
			Address: addr,
			Symbol:  strings.ToUpper(strings.TrimSpace(balance.Symbol)),
			Amount:  amount,
		})
	}
	return &state.GenesisState{
		Schedule:   g.SaleSchedule(),
		Parameters: params,
		Tiers:      tiers,
		MerkleRoot: root,
		Roles:      roles,
		Balances:   balances,
	}, nil
}
