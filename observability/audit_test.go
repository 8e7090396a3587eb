package observability

import (
	"bufio"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/sale"
)

type testEvent struct {
	payload *types.Event
}

func (e testEvent) EventType() string   { return e.payload.Type }
func (e testEvent) Event() *types.Event { return e.payload }

type countingEmitter struct {
	n int
}

func (c *countingEmitter) Emit(events.Event) { c.n++ }

func TestAuditSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	next := &countingEmitter{}
	sink := NewAuditSink(path, next, nil)
	defer sink.Close()

	sink.Emit(testEvent{payload: sale.NewPausedEvent(true)})
	sink.Emit(testEvent{payload: sale.NewPurchaseEvent([20]byte{0x01}, big.NewInt(10), big.NewInt(20), big.NewInt(10), 0)})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []auditLine
	for scanner.Scan() {
		var line auditLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line not JSON: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0].Type != sale.EventTypePaused || lines[0].Timestamp == "" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Attributes["depositedAmount"] != "10" {
		t.Fatalf("attributes not persisted: %+v", lines[1])
	}
	if next.n != 2 {
		t.Fatalf("events not forwarded: %d", next.n)
	}
}

func TestMetricsEmitterForwards(t *testing.T) {
	next := &countingEmitter{}
	emitter := NewMetricsEmitter(next)

	emitter.Emit(testEvent{payload: sale.NewPurchaseEvent([20]byte{0x01}, big.NewInt(5), big.NewInt(9), big.NewInt(5), 1)})
	emitter.Emit(testEvent{payload: sale.NewTierAdvancedEvent(0, 1)})
	emitter.Emit(testEvent{payload: sale.NewCompletedEvent(big.NewInt(5))})
	emitter.Emit(testEvent{payload: sale.NewUnpausedEvent()})

	if next.n != 4 {
		t.Fatalf("every event must be forwarded, got %d", next.n)
	}
}
