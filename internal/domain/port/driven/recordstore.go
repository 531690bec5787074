package driven

import (
	"context"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// RecordStore defines the driven port for processed-record persistence.
// CreateIfAbsent is the linearization point of idempotence: it must be atomic
// at the storage layer.
type RecordStore interface {
	// CreateIfAbsent inserts rec unless a record with the same comment ID
	// exists. It returns the persisted record and whether this call created it.
	// When rec.AwaitingDispatch is set, a pending dispatch row is created in
	// the same transaction.
	CreateIfAbsent(ctx context.Context, rec model.ProcessedRecord) (model.ProcessedRecord, bool, error)
	// Get returns nil, nil when no record exists for commentID.
	Get(ctx context.Context, commentID string) (*model.ProcessedRecord, error)
	List(ctx context.Context, filter model.RecordFilter) ([]model.ProcessedRecord, error)
	CountByLabel(ctx context.Context) (map[model.SentimentLabel]int, error)
}
