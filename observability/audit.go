package observability

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"tokensale/core/events"
	"tokensale/core/types"
)

// AuditSink persists every emitted sale event as one JSON line to a size-
// rotated file, giving operators a replayable record of configuration
// changes and purchases independent of the metrics pipeline.
type AuditSink struct {
	mu     sync.Mutex
	writer io.WriteCloser
	next   events.Emitter
	logger *slog.Logger
}

type auditLine struct {
	Timestamp  string            `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewAuditSink creates a sink writing to the given path with rotation at
// 64 MiB, keeping ten compressed backups. The next emitter, if non-nil,
// receives every event after it is persisted.
func NewAuditSink(path string, next events.Emitter, logger *slog.Logger) *AuditSink {
	return &AuditSink{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64,
			MaxBackups: 10,
			Compress:   true,
		},
		next:   next,
		logger: logger,
	}
}

type payloadEvent interface {
	Event() *types.Event
}

// Emit implements events.Emitter.
func (s *AuditSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	line := auditLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      evt.EventType(),
	}
	if withPayload, ok := evt.(payloadEvent); ok {
		if payload := withPayload.Event(); payload != nil {
			line.Attributes = payload.Attributes
		}
	}
	encoded, err := json.Marshal(line)
	if err == nil {
		s.mu.Lock()
		_, err = s.writer.Write(append(encoded, '\n'))
		s.mu.Unlock()
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("audit sink write failed", "err", err, "event", line.Type)
	}
	if s.next != nil {
		s.next.Emit(evt)
	}
}

// Close flushes and closes the underlying file.
func (s *AuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
