package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"tokensale/gateway/middleware"
	"tokensale/native/access"
	"tokensale/native/sale"
	"tokensale/native/whitelist"
	"tokensale/state"
	"tokensale/storage"
)

const (
	testSecret = "test-signing-secret"
	testToken  = "USDQ"
)

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	buyerA    = testAddr(0xA1)
	buyerB    = testAddr(0xB2)
	adminAddr = testAddr(0xC3)
	treasury  = testAddr(0xE5)
	vault     = testAddr(0xF6)
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func testRoot() [32]byte {
	a := whitelist.SaleLeaf(buyerA)
	b := whitelist.SaleLeaf(buyerB)
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var root [32]byte
	copy(root[:], ethcrypto.Keccak256(a[:], b[:]))
	return root
}

func proofFor(addr [20]byte) []string {
	sibling := whitelist.SaleLeaf(buyerB)
	if addr == buyerB {
		sibling = whitelist.SaleLeaf(buyerA)
	}
	return []string{"0x" + hex.EncodeToString(sibling[:])}
}

func testLadder() *sale.TierLadder {
	prices := []int64{20, 30, 40, 50}
	caps := []int64{2_000_000, 4_000_000, 6_000_000, 20_000_000}
	ladder := &sale.TierLadder{}
	for i := range ladder.Tiers {
		ladder.Tiers[i] = sale.Tier{
			Price:         new(big.Int).Mul(big.NewInt(prices[i]), big.NewInt(1_000_000_000_000_000)),
			CumulativeCap: units(caps[i]),
		}
	}
	return ladder
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	err := mgr.SeedGenesis(&state.GenesisState{
		Schedule:   &sale.Schedule{ComingSoonEnd: 1000, OnlyKycEnd: 2000, PurchaseEnd: 3000},
		Parameters: &sale.Parameters{MinDeposit: units(500), MaxDepositPerWallet: units(25_000_000)},
		Tiers:      testLadder(),
		MerkleRoot: testRoot(),
		Roles: map[string][][20]byte{
			access.RoleSuperAdmin: {adminAddr},
			access.RoleAdmin:      {adminAddr},
		},
		Balances: []state.GenesisBalance{
			{Address: buyerA, Symbol: testToken, Amount: units(30_000_000)},
		},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	engine := sale.NewEngine(mgr.SaleBackend())
	engine.SetTreasury(treasury)
	engine.SetVault(vault)
	engine.SetPaymentToken(testToken)
	engine.SetNowFunc(func() int64 { return 2500 })

	auth := middleware.NewAuthenticator(testSecret)
	return NewServer(engine, mgr, auth, nil, nil).Router()
}

func bearerFor(t *testing.T, addr [20]byte) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   encodeWireAddress(addr),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, handler http.Handler, method, path, bearer string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStageEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/v1/sale/stage", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp stageResponse
	decodeBody(t, rec, &resp)
	if resp.Stage != "token_purchase" {
		t.Fatalf("stage = %q", resp.Stage)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/v1/sale/summary", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp summaryResponse
	decodeBody(t, rec, &resp)
	if resp.GlobalCap != units(20_000_000).String() || resp.RemainingCap != resp.GlobalCap {
		t.Fatalf("caps = %q / %q", resp.GlobalCap, resp.RemainingCap)
	}
	if resp.Paused || resp.ActiveTierIndex != 0 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodPost, "/v1/sale/verify", "", verifyRequest{
		Address: encodeWireAddress(buyerA),
		Proof:   proofFor(buyerA),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	decodeBody(t, rec, &resp)
	if !resp.Whitelisted {
		t.Fatalf("expected inclusion")
	}

	// A proof bound to another identity must not verify.
	rec = doJSON(t, handler, http.MethodPost, "/v1/sale/verify", "", verifyRequest{
		Address: encodeWireAddress(testAddr(0x42)),
		Proof:   proofFor(buyerA),
	})
	decodeBody(t, rec, &resp)
	if resp.Whitelisted {
		t.Fatalf("stolen proof must not verify")
	}
}

func TestDepositRequiresAuth(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodPost, "/v1/sale/deposit", "", depositRequest{
		Amount: units(1_000).String(),
		Proof:  proofFor(buyerA),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDepositFlow(t *testing.T) {
	handler := newTestHandler(t)
	bearer := bearerFor(t, buyerA)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sale/deposit", bearer, depositRequest{
		Amount: units(2_000_000).String(),
		Proof:  proofFor(buyerA),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp depositResponse
	decodeBody(t, rec, &resp)
	if resp.TokensPurchased != "100000000000000000000000000" {
		t.Fatalf("tokens = %q", resp.TokensPurchased)
	}
	if resp.TotalCollected != units(2_000_000).String() {
		t.Fatalf("collected = %q", resp.TotalCollected)
	}

	// The allowance view reflects the settled deposit.
	rec = doJSON(t, handler, http.MethodGet, "/v1/sale/allowance/"+encodeWireAddress(buyerA), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowance status = %d: %s", rec.Code, rec.Body.String())
	}
	var allowance allowanceResponse
	decodeBody(t, rec, &allowance)
	if allowance.AmountDeposited != units(2_000_000).String() {
		t.Fatalf("deposited = %q", allowance.AmountDeposited)
	}
	if allowance.RemainingAllowance != units(23_000_000).String() {
		t.Fatalf("remaining = %q", allowance.RemainingAllowance)
	}
}

func TestDepositValidationMapsTo422(t *testing.T) {
	handler := newTestHandler(t)
	bearer := bearerFor(t, buyerA)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sale/deposit", bearer, depositRequest{
		Amount: "999999", // below the one-unit transaction floor
		Proof:  proofFor(buyerA),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Limit != "1000000" {
		t.Fatalf("limit = %q", resp.Limit)
	}
}

func TestAdminPauseGatesDeposits(t *testing.T) {
	handler := newTestHandler(t)
	adminBearer := bearerFor(t, adminAddr)
	buyerBearer := bearerFor(t, buyerA)

	// A buyer token authenticates but the role table rejects the action.
	rec := doJSON(t, handler, http.MethodPost, "/v1/admin/pause", buyerBearer, struct{}{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/pause", adminBearer, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/sale/deposit", buyerBearer, depositRequest{
		Amount: units(1_000).String(),
		Proof:  proofFor(buyerA),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("paused deposit status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/unpause", adminBearer, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("unpause status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sale/verify", bytes.NewBufferString(`{"unknown":true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}
