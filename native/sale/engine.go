package sale

import (
	"errors"
	"math/big"
	"time"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/access"
	"tokensale/native/common"
	"tokensale/native/whitelist"
)

var (
	errNilBackend  = errors.New("sale engine: state backend not configured")
	errNilTreasury = errors.New("sale engine: treasury not configured")

	// ErrNotPaused rejects configuration mutators that may only run while
	// the sale is paused.
	ErrNotPaused = errors.New("sale: operation requires a paused sale")
)

// EngineState is the transactional view of every record the engine reads or
// writes. The concrete implementation is provided by the state manager.
type EngineState interface {
	SaleStateGet() (*State, bool, error)
	SaleStatePut(*State) error
	ScheduleGet() (*Schedule, bool, error)
	SchedulePut(*Schedule) error
	ParametersGet() (*Parameters, bool, error)
	ParametersPut(*Parameters) error
	TiersGet() (*TierLadder, bool, error)
	TiersPut(*TierLadder) error
	UserDepositGet(addr [20]byte) (*UserDeposit, bool, error)
	UserDepositPut(addr [20]byte, dep *UserDeposit) error
	HasRole(role string, addr [20]byte) bool
	TokenBalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	TokenTransfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// EngineTxn couples the state view with an explicit transactional boundary.
// Every public engine operation runs inside exactly one transaction: the
// caller observes either the fully-pre-operation state or the
// fully-post-operation state, never an intermediate.
type EngineTxn interface {
	EngineState
	Commit() error
	Rollback()
}

// StateBackend opens transactions against the single-writer sale store.
type StateBackend interface {
	Begin() (EngineTxn, error)
}

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e saleEvent) Event() *types.Event { return e.evt }

// Engine orchestrates the sale: it validates stage, role, whitelist and
// amount constraints, performs the tier-spanning price computation, commits
// ledger and global-cap mutations and finally triggers the payment transfer.
type Engine struct {
	backend      StateBackend
	emitter      events.Emitter
	nowFn        func() int64
	paymentToken string
	treasury     [20]byte
	vault        [20]byte
}

// NewEngine creates a sale engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine(backend StateBackend) *Engine {
	return &Engine{
		backend: backend,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for stage computation. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetTreasury configures the address that receives collected payment funds.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetVault configures the engine's own asset address swept by WithdrawAssets.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetPaymentToken configures the symbol of the payment asset.
func (e *Engine) SetPaymentToken(symbol string) { e.paymentToken = symbol }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) begin() (EngineTxn, error) {
	if e == nil || e.backend == nil {
		return nil, errNilBackend
	}
	return e.backend.Begin()
}

func requireRole(txn EngineState, role string, caller [20]byte) error {
	if txn.HasRole(role, caller) {
		return nil
	}
	return &AuthorizationError{Role: role}
}

func loadSchedule(txn EngineState) (*Schedule, error) {
	sched, ok, err := txn.ScheduleGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConfigurationError{Field: "schedule", Reason: "not configured"}
	}
	return sched, nil
}

func loadParameters(txn EngineState) (*Parameters, error) {
	params, ok, err := txn.ParametersGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConfigurationError{Field: "parameters", Reason: "not configured"}
	}
	return params, nil
}

func loadTiers(txn EngineState) (*TierLadder, error) {
	tiers, ok, err := txn.TiersGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConfigurationError{Field: "tiers", Reason: "not configured"}
	}
	return tiers, nil
}

func loadState(txn EngineState) (*State, error) {
	st, _, err := txn.SaleStateGet()
	if err != nil {
		return nil, err
	}
	return ensureState(st), nil
}

func (e *Engine) requireExactStage(txn EngineState, required Stage) error {
	sched, err := loadSchedule(txn)
	if err != nil {
		return err
	}
	current := StageAt(e.now(), sched)
	if current != required {
		return &StageError{Current: current, Required: required, Exact: true}
	}
	return nil
}

// Deposit validates, prices and settles a purchase. The preconditions are
// checked in a fixed order and any violation aborts with zero side effects.
// The method is structured as three named phases: validate (no mutation),
// commit (all internal bookkeeping) and settle (the single external payment
// transfer). Settlement runs strictly after the ledger writes so a reentrant
// caller can never observe stale caps or double-spend tier capacity; moving
// the transfer earlier breaks that guarantee.
func (e *Engine) Deposit(caller [20]byte, amount *big.Int, proof whitelist.Proof) (*Receipt, error) {
	if e == nil || e.backend == nil {
		return nil, errNilBackend
	}
	if e.treasury == ([20]byte{}) {
		return nil, errNilTreasury
	}
	txn, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	st, err := loadState(txn)
	if err != nil {
		return nil, err
	}
	tiers, err := loadTiers(txn)
	if err != nil {
		return nil, err
	}
	params, err := loadParameters(txn)
	if err != nil {
		return nil, err
	}

	dep, quote, err := e.validateDeposit(txn, st, params, tiers, caller, amount, proof)
	if err != nil {
		return nil, err
	}

	receipt, advancedFrom, completed, err := commitDeposit(txn, st, tiers, dep, caller, amount, quote)
	if err != nil {
		return nil, err
	}

	if err := e.settleDeposit(txn, caller, receipt.DepositedAmount); err != nil {
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}

	e.emit(NewPurchaseEvent(caller, receipt.DepositedAmount, receipt.TokensPurchased, receipt.TotalCollected, receipt.TierIndex))
	if advancedFrom >= 0 {
		e.emit(NewTierAdvancedEvent(uint8(advancedFrom), receipt.TierIndex))
	}
	if completed {
		e.emit(NewPausedEvent(true))
		e.emit(NewCompletedEvent(receipt.TotalCollected))
	}
	return receipt, nil
}

// validateDeposit runs the six ordered deposit preconditions without touching
// state, then prices the payment against the ladder.
func (e *Engine) validateDeposit(txn EngineState, st *State, params *Parameters, tiers *TierLadder, caller [20]byte, amount *big.Int, proof whitelist.Proof) (*UserDeposit, *Quote, error) {
	// 1. Sale not paused.
	if err := common.Guard(st); err != nil {
		return nil, nil, err
	}
	// 2. Stage gate: deposits are valid only during the purchase window.
	// Completed sits strictly after TokenPurchase in the chronology and is
	// rejected as well.
	sched, err := loadSchedule(txn)
	if err != nil {
		return nil, nil, err
	}
	if current := StageAt(e.now(), sched); current != StageTokenPurchase {
		return nil, nil, &StageError{Current: current, Required: StageTokenPurchase}
	}
	// 3. Absolute per-transaction floor.
	if amount == nil || amount.Cmp(minTransactionAmount) < 0 {
		return nil, nil, &ValidationError{Reason: "amount below transaction floor", Limit: new(big.Int).Set(minTransactionAmount)}
	}
	// 4. Whitelist inclusion bound to the submitting identity.
	if !whitelist.Verify(st.MerkleRoot, whitelist.SaleLeaf(caller), proof) {
		return nil, nil, &ValidationError{Reason: "whitelist proof rejected"}
	}
	dep, _, err := txn.UserDepositGet(caller)
	if err != nil {
		return nil, nil, err
	}
	dep = ensureUserDeposit(dep)
	// 5. Cumulative deposit must reach the personal minimum.
	cumulative := new(big.Int).Add(dep.AmountDeposited, amount)
	if cumulative.Cmp(params.MinDeposit) < 0 {
		return nil, nil, &ValidationError{Reason: "cumulative deposit below minimum", Limit: cloneBigInt(params.MinDeposit)}
	}
	// 6. Amount must fit the remaining personal allowance.
	remaining := new(big.Int).Sub(params.MaxDepositPerWallet, dep.AmountDeposited)
	if amount.Cmp(remaining) > 0 {
		return nil, nil, &ValidationError{Reason: "amount exceeds remaining personal allowance", Limit: remaining}
	}

	quote, err := computeTokens(amount, st.TotalFundsCollected, st.ActiveTierIndex, tiers)
	if err != nil {
		return nil, nil, err
	}
	return dep, quote, nil
}

// commitDeposit applies every internal mutation: global counters, tier
// advancement, auto-pause at the exact global cap and the caller's ledger
// entry. It returns the tier index advanced from (or -1) and whether the sale
// completed.
func commitDeposit(txn EngineState, st *State, tiers *TierLadder, dep *UserDeposit, caller [20]byte, amount *big.Int, quote *Quote) (*Receipt, int, bool, error) {
	deposited := new(big.Int).Sub(amount, quote.Leftover)
	if deposited.Sign() <= 0 {
		return nil, -1, false, &ValidationError{Reason: "no sale capacity remaining", Limit: big.NewInt(0)}
	}

	total := new(big.Int).Add(st.TotalFundsCollected, deposited)
	globalCap := tiers.GlobalCap()
	if total.Cmp(globalCap) > 0 {
		return nil, -1, false, &StateInvariantError{Detail: "collected funds would exceed global cap"}
	}

	advancedFrom := -1
	if quote.TierIndex > st.ActiveTierIndex {
		advancedFrom = int(st.ActiveTierIndex)
		st.ActiveTierIndex = quote.TierIndex
	}
	st.TotalFundsCollected = total

	completed := total.Cmp(globalCap) == 0
	if completed {
		st.Paused = true
	}

	dep.AmountDeposited = new(big.Int).Add(dep.AmountDeposited, deposited)
	dep.PurchasedTokens = new(big.Int).Add(dep.PurchasedTokens, quote.Tokens)

	if err := txn.UserDepositPut(caller, dep); err != nil {
		return nil, -1, false, err
	}
	if err := txn.SaleStatePut(st); err != nil {
		return nil, -1, false, err
	}

	return &Receipt{
		DepositedAmount: deposited,
		TokensPurchased: cloneBigInt(quote.Tokens),
		Leftover:        cloneBigInt(quote.Leftover),
		TierIndex:       st.ActiveTierIndex,
		TotalCollected:  cloneBigInt(total),
	}, advancedFrom, completed, nil
}

// settleDeposit is the interaction phase: the single external payment-asset
// transfer, invoked only after commitDeposit has fully recorded the ledger
// mutations.
func (e *Engine) settleDeposit(txn EngineState, caller [20]byte, deposited *big.Int) error {
	return txn.TokenTransfer(e.paymentToken, caller, e.treasury, deposited)
}

// SetSchedule replaces the phase boundaries. Admin-only and allowed only
// while the sale is paused.
func (e *Engine) SetSchedule(caller [20]byte, sched *Schedule) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleAdmin, caller); err != nil {
		return err
	}
	st, err := loadState(txn)
	if err != nil {
		return err
	}
	if !st.Paused {
		return ErrNotPaused
	}
	if sched == nil {
		return &ConfigurationError{Field: "schedule", Reason: "missing payload"}
	}
	if err := sched.Validate(); err != nil {
		return &ConfigurationError{Field: "schedule", Reason: err.Error()}
	}
	replacement := *sched
	if err := txn.SchedulePut(&replacement); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.emit(NewScheduleUpdatedEvent(&replacement))
	return nil
}

// SetParameters replaces the per-wallet deposit bounds. Admin-only.
func (e *Engine) SetParameters(caller [20]byte, params *Parameters) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleAdmin, caller); err != nil {
		return err
	}
	if params == nil {
		return &ConfigurationError{Field: "parameters", Reason: "missing payload"}
	}
	if err := params.Validate(); err != nil {
		return &ConfigurationError{Field: "parameters", Reason: err.Error()}
	}
	replacement := &Parameters{
		MinDeposit:          cloneBigInt(params.MinDeposit),
		MaxDepositPerWallet: cloneBigInt(params.MaxDepositPerWallet),
	}
	if err := txn.ParametersPut(replacement); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.emit(NewParametersUpdatedEvent(replacement))
	return nil
}

// SetTiers replaces all four ladder entries atomically. Admin-only, allowed
// only while the computed stage is exactly OnlyKyc. The global funding cap is
// implied by the final tier's cumulative cap.
func (e *Engine) SetTiers(caller [20]byte, ladder *TierLadder) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleAdmin, caller); err != nil {
		return err
	}
	if err := e.requireExactStage(txn, StageOnlyKyc); err != nil {
		return err
	}
	if ladder.AllZero() {
		return &ConfigurationError{Field: "tiers", Reason: "all-zero payload"}
	}
	if err := ladder.Validate(); err != nil {
		return &ConfigurationError{Field: "tiers", Reason: err.Error()}
	}
	replacement := ladder.Clone()
	if err := txn.TiersPut(replacement); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.emit(NewTiersUpdatedEvent(replacement))
	return nil
}

// SetMerkleRoot rotates the whitelist root. Operator-only, allowed only at
// stage OnlyKyc. A zero root and a root identical to the stored one are both
// rejected; the latter is kept as an anti-replay safeguard.
func (e *Engine) SetMerkleRoot(caller [20]byte, root [32]byte) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleOperator, caller); err != nil {
		return err
	}
	if err := e.requireExactStage(txn, StageOnlyKyc); err != nil {
		return err
	}
	if root == ([32]byte{}) {
		return &ConfigurationError{Field: "merkleRoot", Reason: "zero root"}
	}
	st, err := loadState(txn)
	if err != nil {
		return err
	}
	if root == st.MerkleRoot {
		return &ConfigurationError{Field: "merkleRoot", Reason: "root identical to current"}
	}
	oldRoot := st.MerkleRoot
	st.MerkleRoot = root
	if err := txn.SaleStatePut(st); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.emit(NewMerkleRootUpdatedEvent(oldRoot, root))
	return nil
}

// Pause halts deposits. Admin-only, independent of stage. Pausing an already
// paused sale is a no-op.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause resumes deposits. Admin-only, independent of stage.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleAdmin, caller); err != nil {
		return err
	}
	st, err := loadState(txn)
	if err != nil {
		return err
	}
	if st.Paused == paused {
		return nil
	}
	st.Paused = paused
	if err := txn.SaleStatePut(st); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	if paused {
		e.emit(NewPausedEvent(false))
	} else {
		e.emit(NewUnpausedEvent())
	}
	return nil
}

// WithdrawAssets sweeps the engine vault's entire balance of the specified
// asset to the recipient. Admin-only with no stage restriction; the breadth
// of this capability is a deliberate trust concentration in the sale design.
func (e *Engine) WithdrawAssets(caller [20]byte, asset string, recipient [20]byte) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := requireRole(txn, access.RoleAdmin, caller); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return &ConfigurationError{Field: "recipient", Reason: "zero address"}
	}
	balance, err := txn.TokenBalanceOf(asset, e.vault)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return nil
	}
	if err := txn.TokenTransfer(asset, e.vault, recipient, balance); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.emit(NewAssetWithdrawnEvent(asset, recipient, balance))
	return nil
}

// view runs a read-only function against a transaction that is always rolled
// back.
func (e *Engine) view(fn func(EngineState) error) error {
	txn, err := e.begin()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	return fn(txn)
}

// CurrentStage returns the phase the sale is in right now.
func (e *Engine) CurrentStage() (Stage, error) {
	var stage Stage
	err := e.view(func(txn EngineState) error {
		sched, err := loadSchedule(txn)
		if err != nil {
			return err
		}
		stage = StageAt(e.now(), sched)
		return nil
	})
	return stage, err
}

// RemainingAllowance returns maxDepositPerWallet minus the identity's
// cumulative deposits.
func (e *Engine) RemainingAllowance(addr [20]byte) (*big.Int, error) {
	var remaining *big.Int
	err := e.view(func(txn EngineState) error {
		params, err := loadParameters(txn)
		if err != nil {
			return err
		}
		dep, _, err := txn.UserDepositGet(addr)
		if err != nil {
			return err
		}
		dep = ensureUserDeposit(dep)
		remaining = new(big.Int).Sub(params.MaxDepositPerWallet, dep.AmountDeposited)
		if remaining.Sign() < 0 {
			remaining = big.NewInt(0)
		}
		return nil
	})
	return remaining, err
}

// UserDepositOf returns the identity's ledger entry. Absent identities report
// zero counters.
func (e *Engine) UserDepositOf(addr [20]byte) (*UserDeposit, error) {
	var dep *UserDeposit
	err := e.view(func(txn EngineState) error {
		entry, _, err := txn.UserDepositGet(addr)
		if err != nil {
			return err
		}
		dep = ensureUserDeposit(entry).Clone()
		return nil
	})
	return dep, err
}

// RemainingGlobalCap returns the funding capacity still available across the
// whole ladder.
func (e *Engine) RemainingGlobalCap() (*big.Int, error) {
	var remaining *big.Int
	err := e.view(func(txn EngineState) error {
		st, err := loadState(txn)
		if err != nil {
			return err
		}
		tiers, err := loadTiers(txn)
		if err != nil {
			return err
		}
		remaining = new(big.Int).Sub(tiers.GlobalCap(), st.TotalFundsCollected)
		if remaining.Sign() < 0 {
			return &StateInvariantError{Detail: "collected funds exceed global cap"}
		}
		return nil
	})
	return remaining, err
}

// VerifyWhitelisted checks a proof for the identity against the current root.
func (e *Engine) VerifyWhitelisted(addr [20]byte, proof whitelist.Proof) (bool, error) {
	var ok bool
	err := e.view(func(txn EngineState) error {
		st, err := loadState(txn)
		if err != nil {
			return err
		}
		ok = whitelist.Verify(st.MerkleRoot, whitelist.SaleLeaf(addr), proof)
		return nil
	})
	return ok, err
}

// Summary is the aggregate view served to dashboards and the RPC surface.
type Summary struct {
	Stage           Stage
	ActiveTierIndex uint8
	TotalCollected  *big.Int
	GlobalCap       *big.Int
	Paused          bool
	MerkleRoot      [32]byte
}

// SummaryView returns the aggregate sale state.
func (e *Engine) SummaryView() (*Summary, error) {
	var summary *Summary
	err := e.view(func(txn EngineState) error {
		st, err := loadState(txn)
		if err != nil {
			return err
		}
		sched, err := loadSchedule(txn)
		if err != nil {
			return err
		}
		tiers, err := loadTiers(txn)
		if err != nil {
			return err
		}
		summary = &Summary{
			Stage:           StageAt(e.now(), sched),
			ActiveTierIndex: st.ActiveTierIndex,
			TotalCollected:  cloneBigInt(st.TotalFundsCollected),
			GlobalCap:       tiers.GlobalCap(),
			Paused:          st.Paused,
			MerkleRoot:      st.MerkleRoot,
		}
		return nil
	})
	return summary, err
}
