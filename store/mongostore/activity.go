package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const activityCollection = "activitylogs"

// ActivityRetention is how long activity documents are kept before the TTL
// index removes them.
const ActivityRetention = 30 * 24 * time.Hour

type activityDoc struct {
	UserID    string            `bson:"userId"`
	Action    string            `bson:"action"`
	IPAddress string            `bson:"ipAddress,omitempty"`
	UserAgent string            `bson:"userAgent,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	Timestamp time.Time         `bson:"timestamp"`
}

// ActivitySink persists activity events into db.activitylogs.
type ActivitySink struct {
	coll   *mongo.Collection
	logger *zerolog.Logger
}

var _ activity.Reader = (*ActivitySink)(nil)

// NewActivitySink returns a sink that logs insert failures through logger.
func NewActivitySink(db *mongo.Database, logger *zerolog.Logger) *ActivitySink {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ActivitySink{coll: db.Collection(activityCollection), logger: logger}
}

// EnsureIndexes creates the per-user lookup index and the retention TTL.
func (s *ActivitySink) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ActivityRetention / time.Second)),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongostore: create activity indexes: %w", err)
	}
	return nil
}

func (s *ActivitySink) Emit(ctx context.Context, event activity.Event) {
	doc := activityDoc{
		UserID:    event.UserID,
		Action:    string(event.Action),
		IPAddress: event.IP,
		UserAgent: event.UserAgent,
		Metadata:  event.Metadata,
		Timestamp: event.Timestamp,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		s.logger.Warn().Err(err).Str("action", doc.Action).Msg("failed to persist activity event")
	}
}

// Recent returns the newest events of userID, newest first.
func (s *ActivitySink) Recent(ctx context.Context, userID string, limit int64) ([]activity.Event, error) {
	cur, err := s.coll.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find activity: %w", err)
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode activity: %w", err)
	}
	out := make([]activity.Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, activity.Event{
			Timestamp: d.Timestamp,
			Action:    activity.Action(d.Action),
			UserID:    d.UserID,
			IP:        d.IPAddress,
			UserAgent: d.UserAgent,
			Metadata:  d.Metadata,
		})
	}
	return out, nil
}
