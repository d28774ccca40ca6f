package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// auditStream is the Redis Stream that downstream compliance consumers
// subscribe to. Entries are capped so an unattended console cannot grow
// the stream without bound.
const (
	auditStream       = "audit"
	auditStreamMaxLen = 10000
)

// RedisBus provides Redis Streams-based publishing of operator actions
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// AuditMessage represents one operator action published to the audit stream
type AuditMessage struct {
	AuditID   string `json:"audit_id"`
	SlideID   string `json:"slide_id"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishAudit publishes an operator action to the audit stream
func (rb *RedisBus) PublishAudit(ctx context.Context, auditMsg AuditMessage) error {
	if auditMsg.AuditID == "" {
		auditMsg.AuditID = uuid.New().String()
	}
	if auditMsg.Timestamp == 0 {
		auditMsg.Timestamp = time.Now().Unix()
	}

	fields := map[string]interface{}{
		"audit_id":  auditMsg.AuditID,
		"slide_id":  auditMsg.SlideID,
		"action":    auditMsg.Action,
		"actor":     auditMsg.Actor,
		"details":   auditMsg.Details,
		"timestamp": auditMsg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: auditStream,
		MaxLen: auditStreamMaxLen,
		Approx: true,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	rb.logger.Printf("Published %s for slide %s to audit stream", auditMsg.Action, auditMsg.SlideID)
	return nil
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the audit stream
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"type": "redis",
	}

	if info, err := rb.GetStreamInfo(ctx, auditStream); err == nil {
		stats["audit_stream"] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
	} else {
		// Stream does not exist until the first publish
		stats["audit_stream"] = map[string]interface{}{
			"length": int64(0),
		}
	}

	return stats, nil
}
