package whitelist

import (
	"bytes"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Proof is a Merkle inclusion path ordered from the leaf's sibling up to the
// node just below the root.
type Proof [][32]byte

// SaleLeaf derives the whitelist leaf binding a participant address. The
// address is hashed twice so a raw intermediate node can never be replayed as
// a leaf.
func SaleLeaf(addr [20]byte) [32]byte {
	inner := ethcrypto.Keccak256(addr[:])
	var leaf [32]byte
	copy(leaf[:], ethcrypto.Keccak256(inner))
	return leaf
}

// ClaimLeaf derives the leaf used by the airdrop claim collaborator, binding
// an address to the exact claimable amount (32-byte big-endian).
func ClaimLeaf(addr [20]byte, amount *big.Int) [32]byte {
	var amt [32]byte
	if amount != nil && amount.Sign() > 0 {
		amount.FillBytes(amt[:])
	}
	payload := make([]byte, 0, len(addr)+len(amt))
	payload = append(payload, addr[:]...)
	payload = append(payload, amt[:]...)
	inner := ethcrypto.Keccak256(payload)
	var leaf [32]byte
	copy(leaf[:], ethcrypto.Keccak256(inner))
	return leaf
}

// Verify folds the proof path over the leaf using sorted-pair hashing and
// reports whether the result matches the published root.
func Verify(root, leaf [32]byte, proof Proof) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}
