package remote

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianapps/resilience-core/internal/model"
)

// Publisher pushes newly recorded interventions onto the tenant's audit
// subject so other sessions can merge them immediately.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a publisher for the given subject.
func NewPublisher(nc *nats.Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// Publish sends one audit record. The record id travels in a header as well
// so subscribers can dedupe without parsing the body.
func (p *Publisher) Publish(record model.AuditRecord) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-record-id", record.ID)
	headers.Set("x-action", record.Action)
	headers.Set("x-severity", string(record.Severity))
	headers.Set("x-created-at", record.CreatedAt.Format(time.RFC3339Nano))

	msg := &nats.Msg{Subject: p.subject, Data: data, Header: headers}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}

	p.logger.Debug("published audit record", "id", record.ID, "action", record.Action)
	return nil
}
