package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/core/service/knowledge"
	"support_server/pkg/apperr"
)

// --- in-memory fakes ---

type fakeMessages struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.InboundMessage
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: make(map[int64]*domain.InboundMessage)}
}

func (f *fakeMessages) add(msg *domain.InboundMessage) *domain.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	f.byID[msg.ID] = msg
	return msg
}

func (f *fakeMessages) Create(ctx context.Context, msg *domain.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byID {
		if m.ExternalID == msg.ExternalID {
			return apperr.AlreadyExists("message")
		}
	}
	f.nextID++
	msg.ID = f.nextID
	clone := *msg
	f.byID[msg.ID] = &clone
	return nil
}

func (f *fakeMessages) GetByID(ctx context.Context, id int64) (*domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("message")
	}
	clone := *msg
	return &clone, nil
}

func (f *fakeMessages) GetByExternalID(ctx context.Context, externalID string) (*domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byID {
		if m.ExternalID == externalID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("message")
}

func (f *fakeMessages) Update(ctx context.Context, msg *domain.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[msg.ID]
	if !ok {
		return apperr.NotFound("message")
	}
	status := stored.Status
	clone := *msg
	// Status changes go through CompareAndSetStatus only.
	clone.Status = status
	f.byID[msg.ID] = &clone
	return nil
}

func (f *fakeMessages) CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[id]
	if !ok {
		return false, apperr.NotFound("message")
	}
	if msg.Status != expected {
		return false, nil
	}
	msg.Status = next
	return true, nil
}

func (f *fakeMessages) ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*domain.InboundMessage
	for _, m := range f.byID {
		if m.Status == status && m.ReceivedAt.Before(before) {
			clone := *m
			result = append(result, &clone)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (f *fakeMessages) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.Status]int64)
	for _, m := range f.byID {
		counts[m.Status]++
	}
	return counts, nil
}

func (f *fakeMessages) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeMessages) status(id int64) domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

type fakeReplies struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.ReplyDraft
	linked map[int64][]int64
}

func newFakeReplies() *fakeReplies {
	return &fakeReplies{byID: make(map[int64]*domain.ReplyDraft), linked: make(map[int64][]int64)}
}

func (f *fakeReplies) Create(ctx context.Context, reply *domain.ReplyDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	reply.ID = f.nextID
	clone := *reply
	f.byID[reply.ID] = &clone
	return nil
}

func (f *fakeReplies) GetByID(ctx context.Context, id int64) (*domain.ReplyDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("reply")
	}
	clone := *reply
	return &clone, nil
}

func (f *fakeReplies) Update(ctx context.Context, reply *domain.ReplyDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[reply.ID]; !ok {
		return apperr.NotFound("reply")
	}
	clone := *reply
	f.byID[reply.ID] = &clone
	return nil
}

func (f *fakeReplies) ListByMessage(ctx context.Context, messageID int64) ([]*domain.ReplyDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*domain.ReplyDraft
	for _, r := range f.byID {
		if r.MessageID == messageID {
			clone := *r
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeReplies) LinkArticles(ctx context.Context, replyID int64, articleIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked[replyID] = articleIDs
	return nil
}

func (f *fakeReplies) single(t *testing.T) *domain.ReplyDraft {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.byID) != 1 {
		t.Fatalf("expected exactly 1 draft, got %d", len(f.byID))
	}
	for _, r := range f.byID {
		clone := *r
		return &clone
	}
	return nil
}

type fakeCategories struct {
	categories []*domain.Category
}

func (f *fakeCategories) List(ctx context.Context) ([]*domain.Category, error) {
	return f.categories, nil
}

func (f *fakeCategories) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	for _, c := range f.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, apperr.NotFound("category")
}

type fakeArticles struct {
	articles []*domain.KnowledgeArticle
	usedIDs  []int64
}

func (f *fakeArticles) ListActiveByCategory(ctx context.Context, categoryID int64, limit int) ([]*domain.KnowledgeArticle, error) {
	var result []*domain.KnowledgeArticle
	for _, a := range f.articles {
		if a.CategoryID == categoryID {
			result = append(result, a)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (f *fakeArticles) IncrementUseCount(ctx context.Context, articleIDs []int64) error {
	f.usedIDs = append(f.usedIDs, articleIDs...)
	return nil
}

type fakeReasoning struct {
	classification *domain.ClassificationResult
	classifyErr    error
	classifyCalls  int

	generation    *domain.ReplyResult
	generateErr   error
	generateCalls int
}

func (f *fakeReasoning) Classify(ctx context.Context, subject, body string, categories []*domain.Category) (*domain.ClassificationResult, error) {
	f.classifyCalls++
	if f.classifyErr != nil {
		return nil, f.classifyErr
	}
	return f.classification, nil
}

func (f *fakeReasoning) GenerateReply(ctx context.Context, req *out.ReplyRequest) (*domain.ReplyResult, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.generation, nil
}

type fakeSender struct {
	mu            sync.Mutex
	sendErr       error
	replies       []int64
	notifications []string
}

func (f *fakeSender) SendReply(ctx context.Context, msg *domain.InboundMessage, draft *domain.ReplyDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.replies = append(f.replies, draft.ID)
	return nil
}

func (f *fakeSender) SendNotification(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.notifications = append(f.notifications, to)
	return nil
}

type fakeProducer struct {
	mu          sync.Mutex
	triage      []int64
	reprocess   []int64
	escalations []int64
	publishErr  error
}

func (f *fakeProducer) PublishTriage(ctx context.Context, messageID int64, force bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.triage = append(f.triage, messageID)
	return "job-1", nil
}

func (f *fakeProducer) PublishReprocess(ctx context.Context, messageID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.reprocess = append(f.reprocess, messageID)
	return "job-4", nil
}

func (f *fakeProducer) PublishEscalation(ctx context.Context, messageID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.escalations = append(f.escalations, messageID)
	return "job-2", nil
}

func (f *fakeProducer) PublishCleanup(ctx context.Context, retentionDays int) (string, error) {
	return "job-3", nil
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []*domain.ProcessingLogEntry
}

func (f *fakeAuditLog) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditLog) ListByMessage(ctx context.Context, messageID int64) ([]*domain.ProcessingLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*domain.ProcessingLogEntry
	for _, e := range f.entries {
		if e.MessageID == messageID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeAuditLog) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAuditLog) has(step, status string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Step == step && e.Status == status {
			return true
		}
	}
	return false
}

// --- fixture ---

type pipelineFixture struct {
	messages  *fakeMessages
	replies   *fakeReplies
	articles  *fakeArticles
	reasoning *fakeReasoning
	sender    *fakeSender
	producer  *fakeProducer
	audit     *fakeAuditLog
	pipeline  *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	messages := newFakeMessages()
	replies := newFakeReplies()
	articles := &fakeArticles{articles: []*domain.KnowledgeArticle{
		{ID: 11, CategoryID: 1, Title: "Refund policy", Content: "Refunds within 30 days.", IsActive: true},
	}}
	categories := &fakeCategories{categories: []*domain.Category{
		{ID: 1, Name: "billing", AutoReplyEnabled: true},
		{ID: 2, Name: "complaint", AutoReplyEnabled: true, EscalationRequired: true},
		{ID: 3, Name: "technical", AutoReplyEnabled: false},
	}}
	reasoning := &fakeReasoning{
		classification: &domain.ClassificationResult{
			Category:   "billing",
			Confidence: 0.92,
			Priority:   domain.PriorityMedium,
			Sentiment:  domain.SentimentNeutral,
		},
		generation: &domain.ReplyResult{
			Reply:      "Dear Alice,\n\nYour refund is on its way.",
			Confidence: 0.9,
		},
	}
	sender := &fakeSender{}
	producer := &fakeProducer{}
	audit := &fakeAuditLog{}

	p := NewPipeline(
		Config{AutoSendThreshold: 0.85, MaxRetryAttempts: 3, BaseRetryDelay: time.Second, KnowledgeArticleLimit: 3},
		messages,
		replies,
		categories,
		knowledge.NewSelector(articles, 3),
		reasoning,
		sender,
		producer,
		NewRecorder(audit),
	)

	return &pipelineFixture{
		messages:  messages,
		replies:   replies,
		articles:  articles,
		reasoning: reasoning,
		sender:    sender,
		producer:  producer,
		audit:     audit,
		pipeline:  p,
	}
}

func (fx *pipelineFixture) newMessage() *domain.InboundMessage {
	return fx.messages.add(&domain.InboundMessage{
		ExternalID: "<msg-1@example.com>",
		FromEmail:  "alice@example.com",
		FromName:   "Alice",
		Subject:    "Refund request",
		BodyText:   "I would like a refund for my last order.",
		Status:     domain.StatusNew,
		Priority:   domain.PriorityMedium,
		Sentiment:  domain.SentimentNeutral,
		ReceivedAt: time.Now(),
	})
}

// --- tests ---

func TestPipelineAutoSend(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusReplied {
		t.Errorf("expected status replied, got %s", got)
	}

	draft := fx.replies.single(t)
	if draft.Status != domain.ReplyStatusSent {
		t.Errorf("expected draft sent, got %s", draft.Status)
	}
	if draft.SentAt == nil {
		t.Error("expected sent_at to be stamped")
	}
	if len(fx.sender.replies) != 1 {
		t.Errorf("expected 1 sent reply, got %d", len(fx.sender.replies))
	}
	if len(fx.replies.linked[draft.ID]) != 1 {
		t.Errorf("expected linked articles, got %v", fx.replies.linked[draft.ID])
	}
	if len(fx.articles.usedIDs) != 1 || fx.articles.usedIDs[0] != 11 {
		t.Errorf("expected article 11 use count bump, got %v", fx.articles.usedIDs)
	}
	if !fx.audit.has(domain.StepAutoSend, domain.StepCompleted) {
		t.Error("expected completed auto-send audit entry")
	}
}

func TestPipelineLowConfidenceParksForReview(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.generation.Confidence = 0.6
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusPendingReview {
		t.Errorf("expected pending_review, got %s", got)
	}
	draft := fx.replies.single(t)
	if draft.Status != domain.ReplyStatusPendingApproval {
		t.Errorf("expected pending_approval, got %s", draft.Status)
	}
	if len(fx.sender.replies) != 0 {
		t.Error("no mail must go out for a parked draft")
	}
}

func TestPipelineReviewFlagOverridesConfidence(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.generation.Confidence = 0.99
	fx.reasoning.generation.RequiresReview = true
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusPendingReview {
		t.Errorf("expected pending_review, got %s", got)
	}
}

func TestPipelineAutoReplyDisabledCategoryForcesReview(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.classification.Category = "technical"
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusPendingReview {
		t.Errorf("expected pending_review for auto-reply-disabled category, got %s", got)
	}
}

func TestPipelineEscalationSkipsGeneration(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.classification.RequiresEscalation = true
	fx.reasoning.classification.EscalationReason = "threat of chargeback"
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusEscalated {
		t.Errorf("expected escalated, got %s", got)
	}
	if fx.reasoning.generateCalls != 0 {
		t.Error("generation must not run for escalated messages")
	}
	if len(fx.producer.escalations) != 1 {
		t.Errorf("expected 1 escalation job, got %d", len(fx.producer.escalations))
	}
	if !fx.audit.has(domain.StepEscalation, domain.StepCompleted) {
		t.Error("expected completed escalation audit entry")
	}
}

func TestPipelineCategoryPolicyForcesEscalation(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.classification.Category = "complaint"
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusEscalated {
		t.Errorf("expected escalated via category policy, got %s", got)
	}
	stored, _ := fx.messages.GetByID(context.Background(), msg.ID)
	if !stored.RequiresEscalation {
		t.Error("expected escalation flag persisted")
	}
}

func TestPipelineGenerationFailureReleasesClaim(t *testing.T) {
	fx := newPipelineFixture()
	fx.reasoning.generateErr = apperr.ExternalError("reasoning", errors.New("rate limited"))
	msg := fx.newMessage()

	err := fx.pipeline.process(context.Background(), msg.ID, false)
	if err == nil {
		t.Fatal("expected error")
	}

	if got := fx.messages.status(msg.ID); got != domain.StatusNew {
		t.Errorf("expected claim released back to new, got %s", got)
	}
	if !fx.audit.has(domain.StepReplyGeneration, domain.StepFailed) {
		t.Error("expected failed generation audit entry")
	}
}

func TestPipelineSendFailureLeavesDraftApproved(t *testing.T) {
	fx := newPipelineFixture()
	fx.sender.sendErr = apperr.SendFailed("alice@example.com", errors.New("connection refused"))
	msg := fx.newMessage()

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("send failure must not fail the run: %v", err)
	}

	draft := fx.replies.single(t)
	if draft.Status != domain.ReplyStatusApproved {
		t.Errorf("expected draft left approved, got %s", draft.Status)
	}
	if draft.SentAt != nil {
		t.Error("sent_at must not be stamped on failure")
	}
	if got := fx.messages.status(msg.ID); got != domain.StatusProcessing {
		t.Errorf("expected message left in processing for operator attention, got %s", got)
	}
	if !fx.audit.has(domain.StepAutoSend, domain.StepFailed) {
		t.Error("expected failed auto-send audit entry")
	}
}

func TestPipelineTerminalMessageIsNoOp(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()
	fx.messages.byID[msg.ID].Status = domain.StatusReplied

	if err := fx.pipeline.process(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.reasoning.classifyCalls != 0 {
		t.Error("terminal messages must not be reprocessed without force")
	}
}

func TestPipelineForceReprocessesTerminalMessage(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()
	fx.messages.byID[msg.ID].Status = domain.StatusReplied

	if err := fx.pipeline.process(context.Background(), msg.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.reasoning.classifyCalls != 1 {
		t.Errorf("forced run should classify, got %d calls", fx.reasoning.classifyCalls)
	}
}

func TestPipelineClaimRaceHasOneWinner(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fx.pipeline.process(context.Background(), msg.ID, false)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}
	if fx.reasoning.classifyCalls != 1 {
		t.Errorf("exactly one worker must win the claim, got %d classifications", fx.reasoning.classifyCalls)
	}
	if len(fx.sender.replies) != 1 {
		t.Errorf("expected exactly 1 sent reply, got %d", len(fx.sender.replies))
	}
}

func TestPipelineRunRetriesTransientFailure(t *testing.T) {
	fx := newPipelineFixture()
	fx.pipeline.retry.sleep = func(time.Duration) {}
	msg := fx.newMessage()

	// First classification attempt fails, second succeeds.
	flaky := &flakyReasoning{inner: fx.reasoning, failures: 1}
	fx.pipeline.reasoning = flaky

	if err := fx.pipeline.Run(context.Background(), msg.ID, false); err != nil {
		t.Fatalf("expected recovery after retry: %v", err)
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 classify attempts, got %d", flaky.calls)
	}
	if got := fx.messages.status(msg.ID); got != domain.StatusReplied {
		t.Errorf("expected replied after retry, got %s", got)
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()
	msg.Status = domain.StatusReplied

	won, err := fx.pipeline.transition(context.Background(), msg, domain.StatusEscalated)
	if err == nil {
		t.Fatal("expected error for replied -> escalated")
	}
	if won {
		t.Error("illegal transition must not win")
	}
	if got := fx.messages.status(msg.ID); got != domain.StatusReplied {
		t.Errorf("stored status must be untouched, got %s", got)
	}
}

func TestTransitionAppliesLegalMove(t *testing.T) {
	fx := newPipelineFixture()
	msg := fx.newMessage()
	msg.Status = domain.StatusProcessing

	won, err := fx.pipeline.transition(context.Background(), msg, domain.StatusEscalated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Fatal("expected the CAS to win")
	}
	if msg.Status != domain.StatusEscalated {
		t.Errorf("in-memory status not advanced, got %s", msg.Status)
	}
	if got := fx.messages.status(msg.ID); got != domain.StatusEscalated {
		t.Errorf("stored status not advanced, got %s", got)
	}
}

func TestSetDraftStatusFollowsMachine(t *testing.T) {
	draft := &domain.ReplyDraft{Status: domain.ReplyStatusDraft}

	if err := setDraftStatus(draft, domain.ReplyStatusSent); err == nil {
		t.Fatal("expected error for draft -> sent")
	}
	if draft.Status != domain.ReplyStatusDraft {
		t.Errorf("status must be untouched after a rejected move, got %s", draft.Status)
	}

	if err := setDraftStatus(draft, domain.ReplyStatusApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := setDraftStatus(draft, domain.ReplyStatusSent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Status != domain.ReplyStatusSent {
		t.Errorf("expected sent, got %s", draft.Status)
	}
}

// flakyReasoning fails the first n Classify calls then delegates.
type flakyReasoning struct {
	inner    out.ReasoningPort
	failures int
	calls    int
}

func (f *flakyReasoning) Classify(ctx context.Context, subject, body string, categories []*domain.Category) (*domain.ClassificationResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, apperr.ExternalError("reasoning", errors.New("transient"))
	}
	return f.inner.Classify(ctx, subject, body, categories)
}

func (f *flakyReasoning) GenerateReply(ctx context.Context, req *out.ReplyRequest) (*domain.ReplyResult, error) {
	return f.inner.GenerateReply(ctx, req)
}
