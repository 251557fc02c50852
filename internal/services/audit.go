package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/serenify-auth/internal/models"
)

const (
	securityEventsCollection = "security_events"
	securityEventRetention   = 90 * 24 * time.Hour
)

// Auditor records security events. Record must never block or fail the
// calling request.
type Auditor interface {
	Record(event models.SecurityEvent)
}

type NopAuditor struct{}

func (NopAuditor) Record(models.SecurityEvent) {}

// MongoAuditor writes events to MongoDB in the background.
type MongoAuditor struct {
	col    *mongo.Collection
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewMongoAuditor(db *mongo.Database, logger zerolog.Logger) *MongoAuditor {
	return &MongoAuditor{col: db.Collection(securityEventsCollection), logger: logger}
}

// EnsureIndexes configures indexes for the security_events collection.
// Called on startup after Mongo has connected.
func (a *MongoAuditor) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_type_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("ttl_created").SetExpireAfterSeconds(int32(securityEventRetention.Seconds())),
		},
	}
	_, err := a.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *MongoAuditor) Record(event models.SecurityEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	a.wg.Add(1)
	go func(e models.SecurityEvent) {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := a.col.InsertOne(ctx, e); err != nil {
			a.logger.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to record security event")
		}
	}(event)
}

// Close waits for in-flight writes.
func (a *MongoAuditor) Close() {
	a.wg.Wait()
}
