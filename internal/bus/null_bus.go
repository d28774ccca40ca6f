package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishAudit logs the action but doesn't actually publish it
func (nb *NullBus) PublishAudit(ctx context.Context, auditMsg AuditMessage) error {
	nb.logger.Printf("Would publish %s for slide %s (Redis disabled)", auditMsg.Action, auditMsg.SlideID)
	return nil
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":   "null",
		"status": "disabled",
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
