package triage

import (
	"context"
	"sync"
	"testing"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
)

type fakeArchive struct {
	mu      sync.Mutex
	saved   []*out.BodyRecord
	saveErr error
}

func (f *fakeArchive) SaveBody(ctx context.Context, record *out.BodyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeArchive) GetBody(ctx context.Context, messageID int64) (*out.BodyRecord, error) {
	return nil, nil
}

func (f *fakeArchive) DeleteBody(ctx context.Context, messageID int64) error {
	return nil
}

func newRaw() *domain.RawMessage {
	return &domain.RawMessage{
		ExternalID: "<abc123@mail.example.com>",
		FromEmail:  "bob@example.com",
		FromName:   "Bob",
		ToEmail:    "support@example.com",
		Subject:    "Login problem",
		BodyText:   "I cannot log in since yesterday.",
		Raw:        "From: bob@example.com\r\n\r\nI cannot log in since yesterday.",
		ReceivedAt: time.Now(),
	}
}

func TestIngestCreatesAndEnqueues(t *testing.T) {
	messages := newFakeMessages()
	archive := &fakeArchive{}
	producer := &fakeProducer{}
	audit := &fakeAuditLog{}
	svc := NewIngestService(messages, archive, producer, NewRecorder(audit))

	msg, created, err := svc.Ingest(context.Background(), newRaw())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for a first delivery")
	}
	if msg.ID == 0 {
		t.Error("expected assigned ID")
	}
	if msg.Status != domain.StatusNew {
		t.Errorf("expected status new, got %s", msg.Status)
	}
	if len(archive.saved) != 1 {
		t.Errorf("expected archived body, got %d", len(archive.saved))
	}
	if len(producer.triage) != 1 || producer.triage[0] != msg.ID {
		t.Errorf("expected triage job for message %d, got %v", msg.ID, producer.triage)
	}
	if !audit.has(domain.StepIngestion, domain.StepCompleted) {
		t.Error("expected an ingestion audit entry")
	}
}

func TestIngestDuplicateDeliveryIsNoOp(t *testing.T) {
	messages := newFakeMessages()
	producer := &fakeProducer{}
	audit := &fakeAuditLog{}
	svc := NewIngestService(messages, &fakeArchive{}, producer, NewRecorder(audit))

	raw := newRaw()
	first, _, err := svc.Ingest(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, created, err := svc.Ingest(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected created=false for a duplicate")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate must resolve to the existing message, got %d vs %d", second.ID, first.ID)
	}
	if len(producer.triage) != 1 {
		t.Errorf("duplicate must not enqueue again, got %d jobs", len(producer.triage))
	}
	entries, _ := audit.ListByMessage(context.Background(), first.ID)
	if len(entries) != 1 {
		t.Errorf("duplicate must not add a second ingestion entry, got %d", len(entries))
	}
}

func TestIngestConcurrentDeliveriesCreateOne(t *testing.T) {
	messages := newFakeMessages()
	producer := &fakeProducer{}
	svc := NewIngestService(messages, &fakeArchive{}, producer, NewRecorder(&fakeAuditLog{}))

	var wg sync.WaitGroup
	createdCount := make([]bool, 4)
	for i := range createdCount {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := svc.Ingest(context.Background(), newRaw())
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, c := range createdCount {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one creation, got %d", wins)
	}
	counts, _ := messages.CountByStatus(context.Background())
	if counts[domain.StatusNew] != 1 {
		t.Errorf("expected 1 stored message, got %d", counts[domain.StatusNew])
	}
}

func TestIngestArchiveFailureIsSurvivable(t *testing.T) {
	messages := newFakeMessages()
	archive := &fakeArchive{saveErr: context.DeadlineExceeded}
	producer := &fakeProducer{}
	svc := NewIngestService(messages, archive, producer, NewRecorder(&fakeAuditLog{}))

	_, created, err := svc.Ingest(context.Background(), newRaw())
	if err != nil {
		t.Fatalf("archive failure must not fail ingestion: %v", err)
	}
	if !created {
		t.Error("expected message created despite archive failure")
	}
	if len(producer.triage) != 1 {
		t.Error("triage job must still be enqueued")
	}
}

func TestIngestEnqueueFailureIsSurvivable(t *testing.T) {
	messages := newFakeMessages()
	producer := &fakeProducer{publishErr: context.DeadlineExceeded}
	svc := NewIngestService(messages, &fakeArchive{}, producer, NewRecorder(&fakeAuditLog{}))

	msg, created, err := svc.Ingest(context.Background(), newRaw())
	if err != nil {
		t.Fatalf("enqueue failure must not fail ingestion: %v", err)
	}
	if !created {
		t.Error("expected message created despite enqueue failure")
	}
	// Recovery scan picks it up from status new.
	if msg.Status != domain.StatusNew {
		t.Errorf("expected status new, got %s", msg.Status)
	}
}
