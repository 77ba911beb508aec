package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type relayMetrics interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLetter(eventType, reason string)
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Broker      broker
	Events      eventStore
	Registry    eventResolver
	DeadLetters deadLetterStore
	Metrics     relayMetrics
	// Topics overrides how a topic name becomes a publisher; tests inject fakes here.
	Topics func(topic string) topicPublisher
}

// Relay drains committed outbox rows to Pub/Sub. A row is marked published,
// retried on the next drain, or moved to the dead-letter table.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      broker
	events      eventStore
	registry    eventResolver
	deadLetters deadLetterStore
	metrics     relayMetrics
	topics      func(topic string) topicPublisher
	batchSize   int
	maxAttempts int
	pace        pacer
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		broker:      params.Broker,
		events:      params.Events,
		registry:    params.Registry,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		topics:      params.Topics,
		batchSize:   positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(time.Duration(positiveOr(params.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond),
	}
	if r.topics == nil {
		r.topics = func(topic string) topicPublisher {
			return wrapPublisher(params.Broker.Publisher(topic))
		}
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains until ctx is canceled. A full batch is followed immediately by the
// next drain; an empty one waits a poll interval; a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.broker.Ping} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		found, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = r.pace.failure()
		case found:
			r.pace.reset()
			continue
		default:
			wait = r.pace.idle()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// drain handles one locked batch inside a single transaction and reports
// whether any row was claimed.
func (r *Relay) drain(ctx context.Context) (bool, error) {
	found := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		found = len(events) > 0
		for _, event := range events {
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return found, err
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// delivery is the result of one publish attempt.
type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	d := delivery{topic: resolved.Route.Topic, eventID: resolved.Envelope.EventID}

	err = r.publish(ctx, event, resolved)
	switch {
	case err == nil:
		d.verdict = verdictPublished
	case registry.IsPermanent(err):
		d.verdict, d.reason, d.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= r.maxAttempts:
		d.verdict, d.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.verdict, d.err = verdictRetry, err
	}
	return d
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	eventType := string(event.EventType)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    eventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         d.topic,
		"event_id":      d.eventID,
	})

	switch d.verdict {
	case verdictPublished:
		if err := r.events.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		if r.metrics != nil {
			r.metrics.IncPublished(eventType)
		}
		r.logg.Info(logCtx, "outbox event published")
	case verdictRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed, will retry")
		if r.metrics != nil {
			r.metrics.IncFailed(eventType)
		}
		if err := r.events.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case verdictDeadLetter:
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error":        d.err.Error(),
			"error_reason": d.reason,
		}), "outbox event moved to dead letters")
		message := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &message,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := r.deadLetters.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, event.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		if r.metrics != nil {
			r.metrics.IncDeadLetter(eventType, string(d.reason))
		}
	}
	return nil
}
