package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"tokensale/native/access"
)

// The bank ledger is the payment-asset collaborator of the sale engine: a
// plain fungible-token store offering balanceOf/transfer/transferFrom with
// atomic move-or-fail semantics and role-gated minting. Token semantics
// beyond that (delegation, burn schedules, governance) are out of scope.

var (
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")

	errNilStore = errors.New("bank: storage not configured")
)

// Storage abstracts the subset of state functionality required by the token
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// RoleView exposes the role check consulted by the mint gate.
type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

// Token is the value-transfer interface the sale engine settles against. A
// requested amount moves atomically or the call fails entirely.
type Token interface {
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

var (
	balancePrefix   = []byte("bank/balance/")
	allowancePrefix = []byte("bank/allowance/")
	supplyPrefix    = []byte("bank/supply/")
)

func normalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("bank: token symbol required")
	}
	return trimmed, nil
}

func balanceKey(symbol string, addr [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	buf = append(buf, addr[:]...)
	return buf
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+len(symbol)+2+2*len(owner))
	buf = append(buf, allowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	buf = append(buf, owner[:]...)
	buf = append(buf, '/')
	buf = append(buf, spender[:]...)
	return buf
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, 0, len(supplyPrefix)+len(symbol))
	buf = append(buf, supplyPrefix...)
	buf = append(buf, symbol...)
	return buf
}

// Ledger is a state-backed Token implementation. Balances are held as
// 256-bit unsigned integers; all arithmetic checks for overflow.
type Ledger struct {
	store Storage
	roles RoleView
}

// NewLedger creates a token ledger over the provided storage backend. The
// role view may be nil when minting is not needed.
func NewLedger(store Storage, roles RoleView) *Ledger {
	return &Ledger{store: store, roles: roles}
}

func (l *Ledger) loadAmount(key []byte) (*uint256.Int, error) {
	var raw []byte
	ok, err := l.store.KVGet(key, &raw)
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return uint256.NewInt(0), nil
	}
	value := new(uint256.Int).SetBytes(raw)
	return value, nil
}

func (l *Ledger) storeAmount(key []byte, value *uint256.Int) error {
	return l.store.KVPut(key, value.Bytes())
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("bank: amount must be non-negative")
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("bank: amount exceeds 256 bits")
	}
	return value, nil
}

// BalanceOf returns the balance held by the address.
func (l *Ledger) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	balance, err := l.loadAmount(balanceKey(normalized, addr))
	if err != nil {
		return nil, err
	}
	return balance.ToBig(), nil
}

// Transfer moves amount from one address to another. Zero-amount transfers
// are a no-op.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.move(normalized, from, to, value)
}

func (l *Ledger) move(symbol string, from, to [20]byte, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	fromBalance, err := l.loadAmount(balanceKey(symbol, from))
	if err != nil {
		return err
	}
	if fromBalance.Lt(value) {
		return ErrInsufficientBalance
	}
	toBalance, err := l.loadAmount(balanceKey(symbol, to))
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(toBalance, value)
	if overflow {
		return fmt.Errorf("bank: balance overflow for %s", symbol)
	}
	if err := l.storeAmount(balanceKey(symbol, from), new(uint256.Int).Sub(fromBalance, value)); err != nil {
		return err
	}
	return l.storeAmount(balanceKey(symbol, to), updated)
}

// Approve sets the allowance the spender may move on behalf of the owner.
func (l *Ledger) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.storeAmount(allowanceKey(normalized, owner, spender), value)
}

// Allowance returns the amount the spender may still move on behalf of the
// owner.
func (l *Ledger) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	allowance, err := l.loadAmount(allowanceKey(normalized, owner, spender))
	if err != nil {
		return nil, err
	}
	return allowance.ToBig(), nil
}

// TransferFrom moves amount from the owner using the spender's allowance.
func (l *Ledger) TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	allowance, err := l.loadAmount(allowanceKey(normalized, from, spender))
	if err != nil {
		return err
	}
	if allowance.Lt(value) {
		return ErrInsufficientAllowance
	}
	if err := l.move(normalized, from, to, value); err != nil {
		return err
	}
	return l.storeAmount(allowanceKey(normalized, from, spender), new(uint256.Int).Sub(allowance, value))
}

// Mint credits freshly issued units to the recipient. The caller must hold
// the minter role.
func (l *Ledger) Mint(caller, to [20]byte, symbol string, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if l.roles == nil || !l.roles.HasRole(access.RoleMinter, caller) {
		return fmt.Errorf("%w: %s", access.ErrUnauthorized, access.RoleMinter)
	}
	return l.issue(to, symbol, amount)
}

// SeedBalance credits units without a role check. It exists for boot-time
// genesis seeding only; runtime issuance goes through Mint.
func (l *Ledger) SeedBalance(to [20]byte, symbol string, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	return l.issue(to, symbol, amount)
}

func (l *Ledger) issue(to [20]byte, symbol string, amount *big.Int) error {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	supply, err := l.loadAmount(supplyKey(normalized))
	if err != nil {
		return err
	}
	updatedSupply, overflow := new(uint256.Int).AddOverflow(supply, value)
	if overflow {
		return fmt.Errorf("bank: supply overflow for %s", normalized)
	}
	balance, err := l.loadAmount(balanceKey(normalized, to))
	if err != nil {
		return err
	}
	updatedBalance, overflow := new(uint256.Int).AddOverflow(balance, value)
	if overflow {
		return fmt.Errorf("bank: balance overflow for %s", normalized)
	}
	if err := l.storeAmount(supplyKey(normalized), updatedSupply); err != nil {
		return err
	}
	return l.storeAmount(balanceKey(normalized, to), updatedBalance)
}

// TotalSupply returns the cumulative minted units of the symbol.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	supply, err := l.loadAmount(supplyKey(normalized))
	if err != nil {
		return nil, err
	}
	return supply.ToBig(), nil
}
