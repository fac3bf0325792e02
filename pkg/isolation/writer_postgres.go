package isolation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var violationColumns = []string{
	"id", "request_id", "client_ip", "attempted_tenant_id", "actual_tenant_id",
	"field", "severity", "reason", "occurred_at",
}

// PostgresWriter copies violations into the isolation_violations table.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter creates a writer over an open pool.
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{pool: pool}
}

// WriteBatch implements BatchWriter using the COPY protocol.
func (w *PostgresWriter) WriteBatch(ctx context.Context, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}

	n, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"isolation_violations"},
		violationColumns,
		pgx.CopyFromSlice(len(violations), func(i int) ([]any, error) {
			v := violations[i]
			return []any{
				v.ID, v.RequestID, v.ClientIP, v.AttemptedTenantID, v.ActualTenantID,
				string(v.Field), string(v.Severity), v.Reason, v.Timestamp,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy %d violations: %w", len(violations), err)
	}
	if int(n) != len(violations) {
		return fmt.Errorf("copy violations: wrote %d of %d rows", n, len(violations))
	}
	return nil
}
