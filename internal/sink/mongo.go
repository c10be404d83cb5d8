package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formstream/backend/internal/models"
)

// RecordsCollection holds ingested records for all documents.
const RecordsCollection = "normalized_records"

// MongoSink writes batches with an unordered InsertMany so one bad row does
// not abort the rest of the batch.
type MongoSink struct {
	col    *mongo.Collection
	logger *slog.Logger
}

func NewMongoSink(db *mongo.Database, logger *slog.Logger) *MongoSink {
	return &MongoSink{col: db.Collection(RecordsCollection), logger: logger}
}

func (s *MongoSink) BulkInsert(ctx context.Context, records []models.NormalizedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	res, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && res != nil {
			// Partial failure: count what actually landed and keep going.
			inserted := len(res.InsertedIDs)
			s.logger.Warn("bulk insert partially failed",
				slog.Int("attempted", len(records)),
				slog.Int("inserted", inserted),
				slog.Int("write_errors", len(bwe.WriteErrors)))
			return inserted, nil
		}
		return 0, fmt.Errorf("bulk insert: %w", err)
	}

	return len(res.InsertedIDs), nil
}

var _ BulkSink = (*MongoSink)(nil)
