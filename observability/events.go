package observability

import (
	"math/big"
	"strconv"

	"tokensale/core/events"
	"tokensale/native/sale"
)

// MetricsEmitter updates the sale metrics registry from the engine's event
// stream and forwards each event to the next emitter.
type MetricsEmitter struct {
	metrics *SaleMetrics
	next    events.Emitter
}

// NewMetricsEmitter wraps the next emitter with metrics recording.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	return &MetricsEmitter{metrics: Sale(), next: next}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case sale.EventTypePurchase:
		total, tier := purchaseDetails(evt)
		m.metrics.RecordDeposit(total, tier)
	case sale.EventTypeTierAdvanced:
		if idx, ok := attribute(evt, "newIndex"); ok {
			if parsed, err := strconv.ParseUint(idx, 10, 8); err == nil {
				m.metrics.RecordTierAdvance(uint8(parsed))
			}
		}
	case sale.EventTypeCompleted:
		m.metrics.RecordCompleted()
	}
	if m.next != nil {
		m.next.Emit(evt)
	}
}

func attribute(evt events.Event, key string) (string, bool) {
	withPayload, ok := evt.(payloadEvent)
	if !ok {
		return "", false
	}
	payload := withPayload.Event()
	if payload == nil || payload.Attributes == nil {
		return "", false
	}
	value, ok := payload.Attributes[key]
	return value, ok
}

func purchaseDetails(evt events.Event) (*big.Int, uint8) {
	total := big.NewInt(0)
	if raw, ok := attribute(evt, "totalCollected"); ok {
		if parsed, okParse := new(big.Int).SetString(raw, 10); okParse {
			total = parsed
		}
	}
	var tier uint8
	if raw, ok := attribute(evt, "tierIndex"); ok {
		if parsed, err := strconv.ParseUint(raw, 10, 8); err == nil {
			tier = uint8(parsed)
		}
	}
	return total, tier
}
