package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry describes one persisted page of a harvest run.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RunID     string             `bson:"runId" json:"runId"`
	Name      string             `bson:"name" json:"name"`
	Dataset   string             `bson:"dataset" json:"dataset"`
	Prefix    string             `bson:"prefix" json:"prefix"`
	Page      int                `bson:"page" json:"page"`
	Start     int                `bson:"start" json:"start"`
	Records   int                `bson:"records" json:"records"`
	NHits     int                `bson:"nhits" json:"nhits"`
	Artifact  string             `bson:"artifact" json:"artifact"`
	Location  string             `bson:"location" json:"location"`
	Size      int64              `bson:"size" json:"size"`
	WrittenAt time.Time          `bson:"writtenAt" json:"writtenAt"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// Run summarises a finished harvest of one dataset.
type Run struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RunID      string             `bson:"runId" json:"runId"`
	Name       string             `bson:"name" json:"name"`
	Dataset    string             `bson:"dataset" json:"dataset"`
	Reason     string             `bson:"reason" json:"reason"`
	Pages      int                `bson:"pages" json:"pages"`
	Records    int                `bson:"records" json:"records"`
	NHits      int                `bson:"nhits" json:"nhits"`
	Filter     map[string]string  `bson:"filter,omitempty" json:"filter,omitempty"`
	StartedAt  time.Time          `bson:"startedAt" json:"startedAt"`
	FinishedAt time.Time          `bson:"finishedAt" json:"finishedAt"`
}
