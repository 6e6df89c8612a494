package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const logCollection = "run_logs"

// LogEntry is one archived line of run output
type LogEntry struct {
	RunID          string    `bson:"run_id"`
	OrganizationID string    `bson:"organization_id"`
	Level          string    `bson:"level"`
	Message        string    `bson:"message"`
	CreatedAt      time.Time `bson:"created_at"`
}

// RunLogStore archives per-run execution logs. The archive is append-heavy
// and read rarely, which suits a document store better than the primary
// database.
type RunLogStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewRunLogStore connects to MongoDB and prepares the log archive
func NewRunLogStore(ctx context.Context, uri, database string) (*RunLogStore, error) {
	clientOpts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	s := &RunLogStore{
		client: client,
		db:     client.Database(database),
	}

	// Lookups are always per run, in order.
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "created_at", Value: 1}},
	}
	if _, err := s.db.Collection(logCollection).Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("failed to create log index: %w", err)
	}

	return s, nil
}

// Close disconnects from MongoDB
func (s *RunLogStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// HealthCheck verifies the connection
func (s *RunLogStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Append stores one log entry for a run
func (s *RunLogStore) Append(ctx context.Context, runID string, orgID uuid.UUID, level, message string) error {
	entry := LogEntry{
		RunID:          runID,
		OrganizationID: orgID.String(),
		Level:          level,
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.db.Collection(logCollection).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}

	return nil
}

// List retrieves a run's log entries in chronological order
func (s *RunLogStore) List(ctx context.Context, runID string, limit int64) ([]LogEntry, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.db.Collection(logCollection).Find(ctx, bson.D{{Key: "run_id", Value: runID}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []LogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode run logs: %w", err)
	}

	return entries, nil
}
