package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestDrainKeepsGoingAfterTransientFailure(t *testing.T) {
	first, second := orderEvent(t, 0), orderEvent(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{first, second}}
	topic := &scriptedTopic{errs: []error{errors.New("unavailable"), nil}}
	h := newHarness(t, store, topic, config.OutboxConfig{MaxAttempts: 5})

	found, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, h.dead.entries)
	assert.Equal(t, 1, h.metrics.failed[string(enums.EventOrderCreated)])
	assert.Equal(t, 1, h.metrics.published[string(enums.EventOrderCreated)])
}

func TestDrainRoutesEventsToRegistryTopics(t *testing.T) {
	notification := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, uuid.NewString(), map[string]any{"template": "order_confirmation"}),
	}
	order := orderEvent(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{notification, order}}
	topic := &scriptedTopic{}
	h := newHarness(t, store, topic, config.OutboxConfig{})

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"notifications", "orders"}, h.topicsAsked)
	require.Len(t, topic.sent, 2)
	assert.Equal(t, string(enums.EventNotificationRequested), topic.sent[0].Attributes["event_type"])
	assert.NotContains(t, topic.sent[0].Attributes, "order_id")
	assert.Equal(t, order.AggregateID.String(), topic.sent[1].Attributes["order_id"])
	assert.JSONEq(t, string(order.Payload), string(topic.sent[1].Data))
}

func TestDrainDeadLettersUndecodableRows(t *testing.T) {
	broken := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":"not-an-object"}`),
	}
	store := &memoryEvents{rows: []models.OutboxEvent{broken}}
	topic := &scriptedTopic{}
	h := newHarness(t, store, topic, config.OutboxConfig{})

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, topic.sent)
	require.Len(t, h.dead.entries, 1)
	entry := h.dead.entries[0]
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []byte(broken.Payload), []byte(entry.Payload))
	assert.Equal(t, []uuid.UUID{broken.ID}, store.terminal)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	tired := orderEvent(t, 2)
	store := &memoryEvents{rows: []models.OutboxEvent{tired}}
	topic := &scriptedTopic{errs: []error{errors.New("deadline exceeded")}}
	h := newHarness(t, store, topic, config.OutboxConfig{MaxAttempts: 3})

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.failed)
	require.Len(t, h.dead.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dead.entries[0].ErrorReason)
	require.NotNil(t, h.dead.entries[0].ErrorMessage)
	assert.Contains(t, *h.dead.entries[0].ErrorMessage, "deadline exceeded")
	key := string(enums.EventOrderCreated) + ":" + string(enums.OutboxDLQReasonMaxAttempts)
	assert.Equal(t, 1, h.metrics.dead[key])
}

func TestDrainReportsEmptyBatch(t *testing.T) {
	h := newHarness(t, &memoryEvents{}, &scriptedTopic{}, config.OutboxConfig{})
	found, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPacerBacksOffAndResets(t *testing.T) {
	p := newPacer(time.Second)
	first := p.failure()
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.Less(t, first, 2*time.Second+jitterWindow)
	for range 10 {
		p.failure()
	}
	assert.Equal(t, maxBackoff, p.current)
	idle := p.idle()
	assert.Equal(t, time.Second, p.current)
	assert.Less(t, idle, time.Second+jitterWindow)
}

type harness struct {
	relay       *Relay
	dead        *memoryDeadLetters
	metrics     *countingMetrics
	topicsAsked []string
}

func newHarness(t *testing.T, store *memoryEvents, topic *scriptedTopic, cfg config.OutboxConfig) *harness {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{
		OrdersTopic:       "orders",
		NotificationTopic: "notifications",
	})
	require.NoError(t, err)

	h := &harness{dead: &memoryDeadLetters{}, metrics: &countingMetrics{}}
	relay, err := NewRelay(RelayParams{
		Outbox:      cfg,
		Logger:      logger.Nop(),
		DB:          inlineTx{},
		Broker:      idleBroker{},
		Events:      store,
		Registry:    reg,
		DeadLetters: h.dead,
		Metrics:     h.metrics,
		Topics: func(name string) topicPublisher {
			h.topicsAsked = append(h.topicsAsked, name)
			return topic
		},
	})
	require.NoError(t, err)
	h.relay = relay
	return h
}

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		AttemptCount:  attempts,
		Payload:       envelope(t, uuid.NewString(), map[string]any{"order_number": "SF-ABC123"}),
	}
}

func envelope(t *testing.T, eventID string, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return payload
}

type memoryEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (m *memoryEvents) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return m.rows, nil
}

func (m *memoryEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memoryEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryEvents) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type memoryDeadLetters struct {
	entries []models.OutboxDLQ
}

func (m *memoryDeadLetters) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type idleBroker struct{}

func (idleBroker) Ping(context.Context) error { return nil }

func (idleBroker) Publisher(string) *gcppubsub.Publisher { return nil }

// scriptedTopic fails publishes with errs in order, then succeeds.
type scriptedTopic struct {
	errs []error
	sent []*gcppubsub.Message
}

func (s *scriptedTopic) Publish(_ context.Context, msg *gcppubsub.Message) publishAck {
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err == nil {
		s.sent = append(s.sent, msg)
	}
	return staticAck{err: err}
}

type staticAck struct{ err error }

func (a staticAck) Get(context.Context) (string, error) { return "server-id", a.err }

type countingMetrics struct {
	published map[string]int
	failed    map[string]int
	dead      map[string]int
}

func bump(m *map[string]int, key string) {
	if *m == nil {
		*m = map[string]int{}
	}
	(*m)[key]++
}

func (c *countingMetrics) IncPublished(eventType string) { bump(&c.published, eventType) }

func (c *countingMetrics) IncFailed(eventType string) { bump(&c.failed, eventType) }

func (c *countingMetrics) IncDeadLetter(eventType, reason string) {
	bump(&c.dead, eventType+":"+reason)
}
