package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokensale/native/access"
	"tokensale/native/bank"
	"tokensale/native/sale"
	"tokensale/storage"
)

// Manager is the single-writer store owning every sale, ledger, role and
// balance record. All mutation flows through transactions obtained from
// Begin; the manager mutex hands out transactions one at a time, which is the
// serialization point required by the sale's concurrency model.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var errTxnFinished = errors.New("state: transaction already finished")

// Txn is a buffered overlay over the database. Reads fall through to the
// database for keys not yet written; writes stay in the overlay until Commit
// flushes them. Rollback discards the overlay. A transaction holds the
// manager lock for its whole lifetime.
type Txn struct {
	mgr    *Manager
	writes map[string][]byte
	done   bool
}

// Begin opens a transaction, blocking until the previous one finishes.
func (m *Manager) Begin() (*Txn, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	m.mu.Lock()
	return &Txn{mgr: m, writes: make(map[string][]byte)}, nil
}

type saleBackend struct {
	mgr *Manager
}

func (b saleBackend) Begin() (sale.EngineTxn, error) {
	return b.mgr.Begin()
}

// SaleBackend adapts the manager to the sale engine's transactional backend
// interface.
func (m *Manager) SaleBackend() sale.StateBackend {
	return saleBackend{mgr: m}
}

// Commit flushes the overlay to the database and releases the manager lock.
func (t *Txn) Commit() error {
	if t == nil || t.done {
		return errTxnFinished
	}
	defer func() {
		t.done = true
		t.mgr.mu.Unlock()
	}()
	for key, value := range t.writes {
		if value == nil {
			if err := t.mgr.db.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := t.mgr.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards the overlay and releases the manager lock. Rolling back a
// finished transaction is a no-op so it can be deferred unconditionally.
func (t *Txn) Rollback() {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.writes = nil
	t.mgr.mu.Unlock()
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP-encodes the value under the hashed key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t == nil || t.done {
		return errTxnFinished
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	t.writes[string(kvKey(key))] = encoded
	return nil
}

// KVGet decodes the stored value into out, reporting whether the key exists.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if t == nil || t.done {
		return false, errTxnFinished
	}
	hashed := string(kvKey(key))
	raw, ok := t.writes[hashed]
	if !ok {
		stored, err := t.mgr.db.Get([]byte(hashed))
		if err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				return false, nil
			}
			return false, err
		}
		raw = stored
	}
	if raw == nil {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes the key at commit time.
func (t *Txn) KVDelete(key []byte) error {
	if t == nil || t.done {
		return errTxnFinished
	}
	t.writes[string(kvKey(key))] = nil
	return nil
}

// --- role table ---

// HasRole reports whether the address holds the role.
func (t *Txn) HasRole(role string, addr [20]byte) bool {
	return access.HasRole(t, role, addr)
}

// --- token ledger ---

// Token returns the bank ledger bound to this transaction.
func (t *Txn) Token() *bank.Ledger {
	return bank.NewLedger(t, t)
}

// TokenBalanceOf returns the payment-asset balance of the address.
func (t *Txn) TokenBalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	return t.Token().BalanceOf(symbol, addr)
}

// TokenTransfer moves amount between two addresses, atomically or not at all.
func (t *Txn) TokenTransfer(symbol string, from, to [20]byte, amount *big.Int) error {
	return t.Token().Transfer(symbol, from, to, amount)
}
