package sqlite

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// setupTestDB opens a migrated in-memory database private to the test. The
// writer and reader pools share it through cache=shared.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it cannot be misread as query parameters.
	db, err := open(memoryDSN(url.PathEscape(t.Name())))
	require.NoError(t, err, "open test db")

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeRecord(id, postURN string, label model.SentimentLabel, processedAt time.Time) model.ProcessedRecord {
	return model.ProcessedRecord{
		Comment: model.Comment{
			ID:               id,
			PostURN:          postURN,
			Text:             "This is amazing, thank you!",
			AuthorName:       "Ada",
			AuthorProfileURL: "https://www.linkedin.com/in/ada",
			Metadata:         map[string]string{"source": "test"},
			ReceivedAt:       processedAt.Add(-time.Minute),
		},
		Sentiment:   model.SentimentResult{Polarity: 0.8, Label: label},
		Response:    model.Response{Text: "Thanks!", TemplateID: "positive-thanks"},
		ProcessedAt: processedAt,
	}
}
