package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	SnapshotsCollection = "snapshots"
	RunsCollection      = "runs"
)

var ErrAlreadyRecorded = errors.New("catalog: already recorded")

type Repository interface {
	RecordSnapshot(ctx context.Context, e *Entry) error
	RecordRun(ctx context.Context, r *Run) error
	SnapshotsForRun(ctx context.Context, runID string) ([]Entry, error)
}

type mongoRepository struct {
	snapshots *mongo.Collection
	runs      *mongo.Collection
	logger    *log.Logger
}

func NewMongoRepository(db *mongo.Database, logger *log.Logger) (Repository, error) {
	repo := &mongoRepository{
		snapshots: db.Collection(SnapshotsCollection),
		runs:      db.Collection(RunsCollection),
		logger:    logger,
	}
	if err := repo.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureIndexes makes an artifact location recordable only once and keeps the
// pages of a run ordered.
func (r *mongoRepository) ensureIndexes(ctx context.Context) error {
	snapshotIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "runId", Value: 1}, {Key: "page", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "dataset", Value: 1}, {Key: "writtenAt", Value: -1}},
		},
	}
	if _, err := r.snapshots.Indexes().CreateMany(ctx, snapshotIndexes); err != nil {
		r.logf("failed to create snapshot indexes: %v", err)
		return err
	}

	runIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := r.runs.Indexes().CreateMany(ctx, runIndexes); err != nil {
		r.logf("failed to create run indexes: %v", err)
		return err
	}
	return nil
}

// RecordSnapshot inserts the entry. A second entry for the same location is
// rejected with ErrAlreadyRecorded.
func (r *mongoRepository) RecordSnapshot(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.snapshots.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: snapshot %s", ErrAlreadyRecorded, e.Location)
	}
	if err != nil {
		return err
	}

	if id, ok := res.InsertedID.(interface{ Hex() string }); ok {
		r.logf("recorded snapshot %s (%s)", e.Artifact, id.Hex())
	}
	return nil
}

func (r *mongoRepository) RecordRun(ctx context.Context, run *Run) error {
	_, err := r.runs.InsertOne(ctx, run)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: run %s", ErrAlreadyRecorded, run.RunID)
	}
	return err
}

func (r *mongoRepository) SnapshotsForRun(ctx context.Context, runID string) ([]Entry, error) {
	cur, err := r.snapshots.Find(ctx,
		bson.M{"runId": runID},
		options.Find().SetSort(bson.D{{Key: "page", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Entry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoRepository) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
