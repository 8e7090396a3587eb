package sale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tokensale/core/types"
)

const (
	EventTypeScheduleUpdated   = "sale.schedule_updated"
	EventTypeParametersUpdated = "sale.parameters_updated"
	EventTypeTiersUpdated      = "sale.tiers_updated"
	EventTypeMerkleRootUpdated = "sale.merkle_root_updated"
	EventTypeTierAdvanced      = "sale.tier_advanced"
	EventTypePurchase          = "sale.purchase"
	EventTypeCompleted         = "sale.completed"
	EventTypePaused            = "sale.paused"
	EventTypeUnpaused          = "sale.unpaused"
	EventTypeAssetWithdrawn    = "sale.asset_withdrawn"
)

// NewScheduleUpdatedEvent returns the canonical payload for a schedule
// replacement.
func NewScheduleUpdatedEvent(s *Schedule) *types.Event {
	attrs := make(map[string]string)
	if s != nil {
		attrs["comingSoonEnd"] = strconv.FormatInt(s.ComingSoonEnd, 10)
		attrs["onlyKycEnd"] = strconv.FormatInt(s.OnlyKycEnd, 10)
		attrs["purchaseEnd"] = strconv.FormatInt(s.PurchaseEnd, 10)
	}
	return &types.Event{Type: EventTypeScheduleUpdated, Attributes: attrs}
}

// NewParametersUpdatedEvent returns the canonical payload for a deposit-bound
// update.
func NewParametersUpdatedEvent(p *Parameters) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["minDeposit"] = formatAmount(p.MinDeposit)
		attrs["maxDepositPerWallet"] = formatAmount(p.MaxDepositPerWallet)
	}
	return &types.Event{Type: EventTypeParametersUpdated, Attributes: attrs}
}

// NewTiersUpdatedEvent returns the canonical payload for a ladder
// replacement, including the recomputed global cap.
func NewTiersUpdatedEvent(l *TierLadder) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		for i, tier := range l.Tiers {
			idx := strconv.Itoa(i)
			attrs["price"+idx] = formatAmount(tier.Price)
			attrs["cumulativeCap"+idx] = formatAmount(tier.CumulativeCap)
		}
		attrs["globalCap"] = formatAmount(l.GlobalCap())
	}
	return &types.Event{Type: EventTypeTiersUpdated, Attributes: attrs}
}

// NewMerkleRootUpdatedEvent carries both the replaced and the new root for
// observability.
func NewMerkleRootUpdatedEvent(oldRoot, newRoot [32]byte) *types.Event {
	return &types.Event{
		Type: EventTypeMerkleRootUpdated,
		Attributes: map[string]string{
			"oldRoot": hex.EncodeToString(oldRoot[:]),
			"newRoot": hex.EncodeToString(newRoot[:]),
		},
	}
}

// NewTierAdvancedEvent records the ladder moving past a tier boundary.
func NewTierAdvancedEvent(oldIndex, newIndex uint8) *types.Event {
	return &types.Event{
		Type: EventTypeTierAdvanced,
		Attributes: map[string]string{
			"oldIndex": strconv.FormatUint(uint64(oldIndex), 10),
			"newIndex": strconv.FormatUint(uint64(newIndex), 10),
		},
	}
}

// NewPurchaseEvent records a settled deposit.
func NewPurchaseEvent(buyer [20]byte, deposited, tokens, totalCollected *big.Int, tierIndex uint8) *types.Event {
	return &types.Event{
		Type: EventTypePurchase,
		Attributes: map[string]string{
			"buyer":           hex.EncodeToString(buyer[:]),
			"depositedAmount": formatAmount(deposited),
			"tokensPurchased": formatAmount(tokens),
			"totalCollected":  formatAmount(totalCollected),
			"tierIndex":       strconv.FormatUint(uint64(tierIndex), 10),
		},
	}
}

// NewCompletedEvent records the sale reaching its global cap.
func NewCompletedEvent(totalCollected *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCompleted,
		Attributes: map[string]string{
			"totalCollected": formatAmount(totalCollected),
		},
	}
}

// NewPausedEvent records an administrative or automatic pause.
func NewPausedEvent(auto bool) *types.Event {
	return &types.Event{
		Type: EventTypePaused,
		Attributes: map[string]string{
			"automatic": strconv.FormatBool(auto),
		},
	}
}

// NewUnpausedEvent records the sale resuming.
func NewUnpausedEvent() *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: map[string]string{}}
}

// NewAssetWithdrawnEvent records an emergency sweep of the engine vault.
func NewAssetWithdrawnEvent(asset string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAssetWithdrawn,
		Attributes: map[string]string{
			"asset":     asset,
			"recipient": hex.EncodeToString(recipient[:]),
			"amount":    formatAmount(amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
