package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"tokensale/crypto"
	"tokensale/native/whitelist"
)

type depositRequest struct {
	Amount string   `json:"amount"`
	Proof  []string `json:"proof"`
}

type depositResponse struct {
	DepositedAmount string `json:"depositedAmount"`
	TokensPurchased string `json:"tokensPurchased"`
	Leftover        string `json:"leftover"`
	TierIndex       uint8  `json:"tierIndex"`
	TotalCollected  string `json:"totalCollected"`
}

type verifyRequest struct {
	Address string   `json:"address"`
	Proof   []string `json:"proof"`
}

type verifyResponse struct {
	Whitelisted bool `json:"whitelisted"`
}

type stageResponse struct {
	Stage string `json:"stage"`
}

type summaryResponse struct {
	Stage           string `json:"stage"`
	ActiveTierIndex uint8  `json:"activeTierIndex"`
	TotalCollected  string `json:"totalCollected"`
	GlobalCap       string `json:"globalCap"`
	RemainingCap    string `json:"remainingCap"`
	Paused          bool   `json:"paused"`
	MerkleRoot      string `json:"merkleRoot"`
}

type allowanceResponse struct {
	Address            string `json:"address"`
	RemainingAllowance string `json:"remainingAllowance"`
	AmountDeposited    string `json:"amountDeposited"`
	PurchasedTokens    string `json:"purchasedTokens"`
}

type scheduleRequest struct {
	ComingSoonEnd int64 `json:"comingSoonEnd"`
	OnlyKycEnd    int64 `json:"onlyKycEnd"`
	PurchaseEnd   int64 `json:"purchaseEnd"`
}

type parametersRequest struct {
	MinDeposit          string `json:"minDeposit"`
	MaxDepositPerWallet string `json:"maxDepositPerWallet"`
}

type tierPayload struct {
	Price         string `json:"price"`
	CumulativeCap string `json:"cumulativeCap"`
}

type tiersRequest struct {
	Tiers []tierPayload `json:"tiers"`
}

type merkleRootRequest struct {
	Root string `json:"root"`
}

type withdrawRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
}

type roleRequest struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

type okResponse struct {
	Status string `json:"status"`
}

var statusOK = okResponse{Status: "ok"}

func parseWireAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr.Array(), nil
}

func encodeWireAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.SalePrefix, addr[:]).String()
}

func parseWireAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative decimal string")
	}
	return amount, nil
}

func parseWireProof(entries []string) (whitelist.Proof, error) {
	proof := make(whitelist.Proof, 0, len(entries))
	for i, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
		decoded, err := hex.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("proof[%d]: %w", i, err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("proof[%d]: expected 32 bytes, got %d", i, len(decoded))
		}
		var node [32]byte
		copy(node[:], decoded)
		proof = append(proof, node)
	}
	return proof, nil
}

func parseWireRoot(value string) ([32]byte, error) {
	var root [32]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return root, fmt.Errorf("invalid root: %w", err)
	}
	if len(decoded) != 32 {
		return root, fmt.Errorf("root must be 32 bytes, got %d", len(decoded))
	}
	copy(root[:], decoded)
	return root, nil
}
