package event

import (
	"context"
	"log"

	"bronze-harvest/internal/catalog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Publisher interface {
	PublishSnapshotWritten(ctx context.Context, e *catalog.Entry) error
}

// Service relays inserts into the snapshot catalog to the message bus, so
// downstream consumers learn about bronze artifacts without polling.
type Service struct {
	col       *mongo.Collection
	publisher Publisher
	logger    *log.Logger
}

func NewService(col *mongo.Collection, publisher Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		col:       col,
		publisher: publisher,
		logger:    logger,
	}
}

type changeEvent struct {
	OperationType string         `bson:"operationType"`
	FullDocument  *catalog.Entry `bson:"fullDocument"`
}

func (s *Service) Run(ctx context.Context) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": "insert"}}},
	}
	stream, err := s.col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		s.logger.Printf("events: failed to open change stream: %v", err)
		return
	}
	defer stream.Close(ctx)

	s.logger.Println("events: watching snapshot catalog...")

	for stream.Next(ctx) {
		s.relay(ctx, stream.Current)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		s.logger.Printf("events: change stream closed with error: %v", err)
	} else {
		s.logger.Println("events: change stream stopped")
	}
}

func (s *Service) relay(ctx context.Context, raw bson.Raw) {
	entry, ok := s.snapshotFromChange(raw)
	if !ok {
		return
	}

	if err := s.publisher.PublishSnapshotWritten(ctx, entry); err != nil {
		s.logger.Printf("events: failed publishing snapshot %s: %v", entry.Artifact, err)
		return
	}

	s.logger.Printf("events: published snapshot %s to message bus", entry.Artifact)
}

func (s *Service) snapshotFromChange(raw bson.Raw) (*catalog.Entry, bool) {
	var ev changeEvent
	if err := bson.Unmarshal(raw, &ev); err != nil {
		s.logger.Printf("events: failed decoding change event: %v", err)
		return nil, false
	}
	if ev.OperationType != "insert" || ev.FullDocument == nil || ev.FullDocument.Location == "" {
		s.logger.Printf("events: skip change event %q without snapshot document", ev.OperationType)
		return nil, false
	}
	return ev.FullDocument, true
}
