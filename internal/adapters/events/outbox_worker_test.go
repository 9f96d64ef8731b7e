package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopmesh/auth/internal/ports"
)

type outboxRow struct {
	rec          ports.OutboxRecord
	published    bool
	deadLettered bool
	claimToken   string
	claimUntil   time.Time
	lastError    string
}

// memoryOutbox mimics the postgres claim/mark semantics closely enough
// for the worker loop: claims exclude published, dead-lettered, and
// still-claimed rows.
type memoryOutbox struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*outboxRow
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{rows: make(map[uuid.UUID]*outboxRow)}
}

func (m *memoryOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[event.EventID] = &outboxRow{rec: ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      event.Payload,
		CreatedAt:    event.OccurredAt,
	}}
	return nil
}

func (m *memoryOutbox) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*outboxRow, 0, len(m.rows))
	for _, row := range m.rows {
		if row.published || row.deadLettered {
			continue
		}
		if !row.claimUntil.IsZero() && row.claimUntil.After(now) {
			continue
		}
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].rec.CreatedAt.Before(candidates[j].rec.CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]ports.OutboxRecord, 0, len(candidates))
	for _, row := range candidates {
		row.claimToken = claimToken
		row.claimUntil = claimUntil
		out = append(out, row.rec)
	}
	return out, nil
}

func (m *memoryOutbox) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[outboxID]
	if !ok || row.claimToken != claimToken {
		return nil
	}
	row.published = true
	row.claimToken = ""
	row.claimUntil = time.Time{}
	return nil
}

func (m *memoryOutbox) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[outboxID]
	if !ok || row.claimToken != claimToken {
		return nil
	}
	row.rec.RetryCount++
	row.lastError = errMsg
	row.claimToken = ""
	row.claimUntil = time.Time{}
	return nil
}

func (m *memoryOutbox) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[outboxID]
	if !ok || row.claimToken != claimToken {
		return nil
	}
	row.rec.RetryCount++
	row.lastError = errMsg
	row.deadLettered = true
	row.claimToken = ""
	row.claimUntil = time.Time{}
	return nil
}

func (m *memoryOutbox) row(t *testing.T, id uuid.UUID) outboxRow {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		t.Fatalf("outbox row %s not found", id)
	}
	return *row
}

type publishedEvent struct {
	eventType    string
	partitionKey string
	payload      string
}

type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	errs   int
}

func (p *capturePublisher) Publish(_ context.Context, eventType, partitionKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errs > 0 {
		p.errs--
		return fmt.Errorf("broker unavailable")
	}
	p.events = append(p.events, publishedEvent{eventType: eventType, partitionKey: partitionKey, payload: string(payload)})
	return nil
}

func (p *capturePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxWorkerPublishesClaimedRows(t *testing.T) {
	t.Parallel()

	outbox := newMemoryOutbox()
	publisher := &capturePublisher{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, 0, 0, 0, 0)

	ctx := context.Background()
	base := time.Now().UTC()
	first := uuid.New()
	second := uuid.New()
	_ = outbox.Enqueue(ctx, ports.OutboxEvent{EventID: first, EventType: "auth.session.created", PartitionKey: "7", Payload: []byte(`{"n":1}`), OccurredAt: base})
	_ = outbox.Enqueue(ctx, ports.OutboxEvent{EventID: second, EventType: "auth.session.revoked", PartitionKey: "7", Payload: []byte(`{"n":2}`), OccurredAt: base.Add(time.Millisecond)})

	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}

	got := publisher.published()
	if len(got) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(got))
	}
	if got[0].eventType != "auth.session.created" || got[1].eventType != "auth.session.revoked" {
		t.Fatalf("events published out of order: %+v", got)
	}
	if got[0].partitionKey != "7" {
		t.Fatalf("partition key not propagated: %+v", got[0])
	}
	if !outbox.row(t, first).published || !outbox.row(t, second).published {
		t.Fatalf("rows should be marked published")
	}

	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("second processOnce failed: %v", err)
	}
	if len(publisher.published()) != 2 {
		t.Fatalf("published rows must not be re-delivered")
	}
}

func TestOutboxWorkerRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	outbox := newMemoryOutbox()
	publisher := &capturePublisher{errs: 10}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, 0, 0, 0, 2)

	ctx := context.Background()
	id := uuid.New()
	_ = outbox.Enqueue(ctx, ports.OutboxEvent{EventID: id, EventType: "auth.session.revoked", PartitionKey: "9", OccurredAt: time.Now().UTC()})

	// Claims in this fake expire immediately once the row is marked, so
	// consecutive iterations can pick the row back up.
	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("first iteration failed: %v", err)
	}
	rowAfterFirst := outbox.row(t, id)
	if rowAfterFirst.deadLettered {
		t.Fatalf("row dead-lettered before retry budget spent")
	}
	if rowAfterFirst.rec.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", rowAfterFirst.rec.RetryCount)
	}

	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("second iteration failed: %v", err)
	}
	rowAfterSecond := outbox.row(t, id)
	if !rowAfterSecond.deadLettered {
		t.Fatalf("row should be dead-lettered at the retry threshold")
	}
	if rowAfterSecond.lastError == "" {
		t.Fatalf("dead-lettered row should record the last error")
	}

	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("third iteration failed: %v", err)
	}
	if len(publisher.published()) != 0 {
		t.Fatalf("no events should have been published")
	}
}

func TestOutboxWorkerDeadLettersExhaustedRowsWithoutPublishing(t *testing.T) {
	t.Parallel()

	outbox := newMemoryOutbox()
	publisher := &capturePublisher{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, 0, 0, 0, 3)

	ctx := context.Background()
	id := uuid.New()
	_ = outbox.Enqueue(ctx, ports.OutboxEvent{EventID: id, EventType: "auth.session.created", OccurredAt: time.Now().UTC()})
	outbox.mu.Lock()
	outbox.rows[id].rec.RetryCount = 3
	outbox.mu.Unlock()

	if err := worker.processOnce(ctx); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}
	if !outbox.row(t, id).deadLettered {
		t.Fatalf("exhausted row should be dead-lettered")
	}
	if len(publisher.published()) != 0 {
		t.Fatalf("exhausted row must not be offered to the publisher")
	}
}
