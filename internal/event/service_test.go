package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"bronze-harvest/internal/catalog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// -------------------------
// Mocks
// -------------------------

type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockAMQPChannel) Close() error { return nil } // unused, but needed

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishSnapshotWritten(ctx context.Context, e *catalog.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// -------------------------
// Helpers
// -------------------------

func newTestPublisher(mockCh *MockAMQPChannel) *RabbitPublisher {
	return &RabbitPublisher{
		conn:      nil,
		ch:        mockCh,
		exchange:  "bronze.events",
		keyPrefix: "opendata",
		logger:    log.New(io.Discard, "", 0),
	}
}

func sampleEntry() *catalog.Entry {
	return &catalog.Entry{
		RunID:    "run-1",
		Dataset:  "comptage-velo-compteurs",
		Page:     3,
		Records:  50,
		NHits:    250,
		Artifact: "paris_bike_counters_p0003_20240315T080509.123456Z.json",
		Location: "data/bronze/paris_bike_counters_p0003_20240315T080509.123456Z.json",
	}
}

// -------------------------
// Publisher tests
// -------------------------

func TestPublishSnapshotWritten_PublishesCorrectly(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"bronze.events",
			"opendata.snapshot.written",
			false,
			false,
			mock.AnythingOfType("amqp091.Publishing"),
		).
		Return(nil).
		Once()

	err := pub.PublishSnapshotWritten(context.Background(), sampleEntry())
	require.NoError(t, err)

	mockCh.AssertExpectations(t)
}

func TestPublishSnapshotWritten_JSONContainsSnapshot(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	var capturedMsg amqp.Publishing

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			mock.Anything,
			mock.Anything,
			false,
			false,
			mock.Anything,
		).
		Return(nil).
		Run(func(args mock.Arguments) {
			capturedMsg = args.Get(5).(amqp.Publishing)
		})

	err := pub.PublishSnapshotWritten(context.Background(), sampleEntry())
	require.NoError(t, err)

	body := string(capturedMsg.Body)

	assert.Contains(t, body, `"event":"snapshot.written"`)
	assert.Contains(t, body, `"page":3`)
	assert.Contains(t, body, `"paris_bike_counters_p0003_20240315T080509.123456Z.json"`)
	assert.Equal(t, "application/json", capturedMsg.ContentType)
	assert.Equal(t, amqp.Persistent, capturedMsg.DeliveryMode)
}

func TestPublishHarvestCompleted_RoutingAndBody(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	var capturedMsg amqp.Publishing

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"bronze.events",
			"opendata.harvest.completed",
			false,
			false,
			mock.Anything,
		).
		Return(nil).
		Run(func(args mock.Arguments) {
			capturedMsg = args.Get(5).(amqp.Publishing)
		}).
		Once()

	err := pub.PublishHarvestCompleted(context.Background(), &catalog.Run{
		RunID:   "run-9",
		Dataset: "comptage-velo-donnees-compteurs",
		Reason:  "truncated",
		Pages:   10,
	})
	require.NoError(t, err)

	var msg HarvestCompletedMessage
	require.NoError(t, json.Unmarshal(capturedMsg.Body, &msg))
	assert.Equal(t, HarvestCompleted, msg.Event)
	assert.Equal(t, "truncated", msg.Run.Reason)
	assert.Equal(t, 10, msg.Run.Pages)
	mockCh.AssertExpectations(t)
}

func TestPublish_NoKeyPrefix(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)
	pub.keyPrefix = ""

	mockCh.
		On("PublishWithContext", mock.Anything, mock.Anything, "snapshot.written", false, false, mock.Anything).
		Return(nil).
		Once()

	require.NoError(t, pub.PublishSnapshotWritten(context.Background(), sampleEntry()))
	mockCh.AssertExpectations(t)
}

func TestPublish_ErrorBubbles(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	publishErr := errors.New("boom")

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
		).
		Return(publishErr)

	err := pub.PublishSnapshotWritten(context.Background(), &catalog.Entry{})
	require.Error(t, err)
	require.Equal(t, publishErr, err)
}

func TestPublish_ContextCancel(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.PublishHarvestCompleted(ctx, &catalog.Run{})
	require.Error(t, err)
	require.Equal(t, context.Canceled, err)
	mockCh.AssertNotCalled(t, "PublishWithContext")
}

// -------------------------
// Relay tests
// -------------------------

func changeDoc(t *testing.T, op string, doc any) bson.Raw {
	t.Helper()

	raw, err := bson.Marshal(bson.M{"operationType": op, "fullDocument": doc})
	require.NoError(t, err)
	return raw
}

func TestRelay_PublishesInsertedSnapshot(t *testing.T) {
	pub := &mockPublisher{}
	logBuf := &bytes.Buffer{}
	svc := NewService(nil, pub, log.New(logBuf, "", 0))

	entry := sampleEntry()
	entry.WrittenAt = time.Unix(1700000000, 0).UTC()

	pub.
		On("PublishSnapshotWritten", mock.Anything, mock.MatchedBy(func(e *catalog.Entry) bool {
			return e.Location == entry.Location && e.Page == 3 && e.WrittenAt.Equal(entry.WrittenAt)
		})).
		Return(nil).
		Once()

	svc.relay(context.Background(), changeDoc(t, "insert", entry))

	pub.AssertExpectations(t)
	assert.Contains(t, logBuf.String(), "published snapshot")
}

func TestRelay_SkipsEventsWithoutDocument(t *testing.T) {
	pub := &mockPublisher{}
	logBuf := &bytes.Buffer{}
	svc := NewService(nil, pub, log.New(logBuf, "", 0))

	svc.relay(context.Background(), changeDoc(t, "delete", nil))

	pub.AssertNotCalled(t, "PublishSnapshotWritten", mock.Anything, mock.Anything)
	assert.Contains(t, logBuf.String(), "skip change event")
}

func TestRelay_PublishFailureIsLogged(t *testing.T) {
	pub := &mockPublisher{}
	logBuf := &bytes.Buffer{}
	svc := NewService(nil, pub, log.New(logBuf, "", 0))

	pub.On("PublishSnapshotWritten", mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()

	svc.relay(context.Background(), changeDoc(t, "insert", sampleEntry()))

	pub.AssertExpectations(t)
	assert.Contains(t, logBuf.String(), "failed publishing snapshot")
}
