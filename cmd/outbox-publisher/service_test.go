package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox/payloads"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox/registry"
)

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePubSub struct {
	pingErr error
}

func (f *fakePubSub) Ping(context.Context) error { return f.pingErr }

func (f *fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	events []models.OutboxEvent

	published []uuid.UUID
	failed    map[uuid.UUID]string
	terminal  map[uuid.UUID]string
}

func newFakeRepo(events ...models.OutboxEvent) *fakeRepo {
	return &fakeRepo{
		events:   events,
		failed:   map[uuid.UUID]string{},
		terminal: map[uuid.UUID]string{},
	}
}

func (f *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	for _, event := range f.events {
		if event.PublishedAt != nil || event.AttemptCount >= maxAttempts {
			continue
		}
		rows = append(rows, event)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	now := time.Now()
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].PublishedAt = &now
		}
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, err error) error {
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].AttemptCount++
		}
	}
	f.failed[id] = err.Error()
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].AttemptCount = terminalAttempts
		}
	}
	f.terminal[id] = err.Error()
	return nil
}

type fakePublisher struct {
	errs     []error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	return fakePublishResult{err: err}
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func mustEnvelopePayload(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       raw,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func authorizedEvent(t *testing.T) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventChargeAuthorized,
		AggregateType: enums.AggregateCharge,
		AggregateID:   orderID,
		Payload: mustEnvelopePayload(t, payloads.ChargeAuthorizedEvent{
			OrderID:     orderID,
			ChargeID:    "ALO1",
			AmountCents: 8500,
			Currency:    "USD",
		}),
		CreatedAt: time.Now(),
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, outboxCfg config.OutboxConfig) *Service {
	t.Helper()

	reg, err := registry.NewEventRegistry(config.PubSubConfig{ChargeEventsTopic: "affirm-charge-events"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSub{},
		Repository: repo,
		Registry:   reg,
		PublisherFactory: func(string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestProcessBatchPublishesEvents(t *testing.T) {
	repo := newFakeRepo(authorizedEvent(t), authorizedEvent(t))
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, config.OutboxConfig{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to be processed")
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(repo.published))
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 publish calls, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventChargeAuthorized) {
		t.Fatalf("unexpected event_type attribute %q", attrs["event_type"])
	}
	if attrs["aggregate_type"] != string(enums.AggregateCharge) {
		t.Fatalf("unexpected aggregate_type attribute %q", attrs["aggregate_type"])
	}
}

func TestProcessBatchContinuesAfterPublishFailure(t *testing.T) {
	first := authorizedEvent(t)
	second := authorizedEvent(t)
	repo := newFakeRepo(first, second)
	pub := &fakePublisher{errs: []error{errors.New("transient broker outage")}}
	svc := newTestService(t, repo, pub, config.OutboxConfig{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected only the second event published, got %v", repo.published)
	}
	if _, ok := repo.failed[first.ID]; !ok {
		t.Fatalf("expected first event marked failed")
	}
	if _, ok := repo.terminal[first.ID]; ok {
		t.Fatalf("first failure should stay retryable")
	}
}

func TestProcessBatchParksUnresolvableEvents(t *testing.T) {
	event := authorizedEvent(t)
	event.EventType = enums.OutboxEventType("inventory_synced")
	repo := newFakeRepo(event)
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, config.OutboxConfig{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	if _, ok := repo.terminal[event.ID]; !ok {
		t.Fatalf("expected unresolvable event marked terminal")
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no publish attempts, got %d", len(pub.messages))
	}
	if repo.events[0].AttemptCount != svc.maxAttempts {
		t.Fatalf("expected attempt count pinned at %d, got %d", svc.maxAttempts, repo.events[0].AttemptCount)
	}
}

func TestProcessBatchParksEventsAtAttemptCeiling(t *testing.T) {
	event := authorizedEvent(t)
	event.AttemptCount = 1
	repo := newFakeRepo(event)
	pub := &fakePublisher{errs: []error{errors.New("still down")}}
	svc := newTestService(t, repo, pub, config.OutboxConfig{MaxAttempts: 2})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	if _, ok := repo.terminal[event.ID]; !ok {
		t.Fatalf("expected event at attempt ceiling marked terminal")
	}
	if repo.events[0].AttemptCount != 2 {
		t.Fatalf("expected attempt count pinned at 2, got %d", repo.events[0].AttemptCount)
	}

	rows, err := repo.FetchUnpublishedForPublish(nil, 10, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("terminal event should not be fetched again, got %d rows", len(rows))
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakePublisher{}, config.OutboxConfig{})

	if svc.batchSize != defaultBatchSize {
		t.Fatalf("expected default batch size %d, got %d", defaultBatchSize, svc.batchSize)
	}
	if svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default max attempts %d, got %d", defaultMaxAttempts, svc.maxAttempts)
	}
	if svc.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", svc.pollInterval)
	}
}
