package isolation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream violations are appended to.
const DefaultStream = "tenantgate:isolation:violations"

// RedisStreamWriter appends violations to a Redis stream for the audit
// service to consume. The stream is trimmed approximately to MaxLen entries.
type RedisStreamWriter struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamWriter creates a writer for stream. An empty stream uses DefaultStream;
// maxLen <= 0 disables trimming.
func NewRedisStreamWriter(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamWriter {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamWriter{client: client, stream: stream, maxLen: maxLen}
}

// WriteBatch implements BatchWriter with one pipelined XADD per violation.
func (w *RedisStreamWriter) WriteBatch(ctx context.Context, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}

	_, err := w.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, v := range violations {
			args := &redis.XAddArgs{
				Stream: w.stream,
				Values: map[string]any{
					"id":                  v.ID.String(),
					"request_id":          v.RequestID,
					"client_ip":           v.ClientIP,
					"attempted_tenant_id": v.AttemptedTenantID,
					"actual_tenant_id":    v.ActualTenantID,
					"field":               string(v.Field),
					"severity":            string(v.Severity),
					"reason":              v.Reason,
					"timestamp":           v.Timestamp.UTC().Format(time.RFC3339Nano),
				},
			}
			if w.maxLen > 0 {
				args.MaxLen = w.maxLen
				args.Approx = true
			}
			p.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %d violations to stream %s: %w", len(violations), w.stream, err)
	}
	return nil
}
