package triage

import (
	"context"
	"fmt"
	"time"

	"support_server/core/domain"
	"support_server/core/port/out"
	"support_server/core/service/knowledge"
	"support_server/pkg/apperr"
	"support_server/pkg/logger"
)

// Config holds the pipeline decision parameters. It is fixed at
// construction; a config change requires a restart.
type Config struct {
	AutoSendThreshold     float64
	MaxRetryAttempts      int
	BaseRetryDelay        time.Duration
	KnowledgeArticleLimit int
}

// Pipeline runs the full triage flow for one message: claim, classify,
// route, generate, persist the draft, then auto-send, park for review,
// or escalate. Every step leaves an audit entry.
type Pipeline struct {
	cfg Config

	messages   out.MessageRepository
	replies    out.ReplyRepository
	categories out.CategoryRepository
	knowledge  *knowledge.Selector
	reasoning  out.ReasoningPort
	sender     out.MailSender
	producer   out.JobProducer
	audit      *Recorder
	retry      *Controller
}

func NewPipeline(
	cfg Config,
	messages out.MessageRepository,
	replies out.ReplyRepository,
	categories out.CategoryRepository,
	selector *knowledge.Selector,
	reasoning out.ReasoningPort,
	sender out.MailSender,
	producer out.JobProducer,
	audit *Recorder,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		messages:   messages,
		replies:    replies,
		categories: categories,
		knowledge:  selector,
		reasoning:  reasoning,
		sender:     sender,
		producer:   producer,
		audit:      audit,
		retry:      NewController(cfg.MaxRetryAttempts, cfg.BaseRetryDelay),
	}
}

// Run processes one message with retry. When every attempt fails the
// message is left in status new for the recovery scan.
func (p *Pipeline) Run(ctx context.Context, messageID int64, force bool) error {
	return p.retry.Do(ctx, func(ctx context.Context) error {
		return p.process(ctx, messageID, force)
	})
}

// process is a single processing attempt.
func (p *Pipeline) process(ctx context.Context, messageID int64, force bool) error {
	log := logger.WithMessageID(messageID)

	msg, err := p.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	if !force {
		if msg.Status.IsTerminal() {
			log.Debug("Message already %s, skipping", msg.Status)
			return nil
		}
		if msg.Status != domain.StatusNew {
			log.Debug("Message in status %s, not claimable", msg.Status)
			return nil
		}
	}

	// Claim the message. Exactly one worker wins this transition; the
	// loser walks away without side effects.
	claimed, err := p.messages.CompareAndSetStatus(ctx, msg.ID, msg.Status, domain.StatusProcessing)
	if err != nil {
		return err
	}
	if !claimed {
		log.Debug("Lost claim race, skipping")
		return nil
	}
	msg.Status = domain.StatusProcessing

	start := time.Now()
	p.audit.Started(ctx, msg.ID, domain.StepProcessing, map[string]any{"force": force})

	classification, category, err := p.classify(ctx, msg)
	if err != nil {
		return p.fail(ctx, msg, domain.StepClassification, err)
	}

	if msg.RequiresEscalation {
		if err := p.escalate(ctx, msg); err != nil {
			return p.fail(ctx, msg, domain.StepEscalation, err)
		}
		p.audit.Completed(ctx, msg.ID, domain.StepProcessing, map[string]any{"outcome": OutcomeEscalate.String()}, start)
		return nil
	}

	generation, articles, err := p.generate(ctx, msg, category)
	if err != nil {
		return p.fail(ctx, msg, domain.StepReplyGeneration, err)
	}

	// A category with auto reply disabled forces human review.
	if category != nil && !category.AutoReplyEnabled {
		generation.RequiresReview = true
	}

	decision := Decide(classification, generation, p.cfg.AutoSendThreshold)

	draft, err := p.persistDraft(ctx, msg, generation, articles)
	if err != nil {
		return p.fail(ctx, msg, domain.StepReplyGeneration, err)
	}

	switch decision.Outcome {
	case OutcomeAutoSend:
		p.autoSend(ctx, msg, draft)
	case OutcomePendingReview:
		if err := setDraftStatus(draft, domain.ReplyStatusPendingApproval); err != nil {
			return p.fail(ctx, msg, domain.StepProcessing, err)
		}
		if err := p.replies.Update(ctx, draft); err != nil {
			return p.fail(ctx, msg, domain.StepProcessing, err)
		}
		if _, err := p.transition(ctx, msg, domain.StatusPendingReview); err != nil {
			return p.fail(ctx, msg, domain.StepProcessing, err)
		}
		log.Info("Draft %d parked for review (confidence %.2f)", draft.ID, generation.Confidence)
	}

	p.audit.Completed(ctx, msg.ID, domain.StepProcessing, map[string]any{"outcome": decision.Outcome.String()}, start)
	return nil
}

// classify runs classification and applies the result to the message.
func (p *Pipeline) classify(ctx context.Context, msg *domain.InboundMessage) (*domain.ClassificationResult, *domain.Category, error) {
	start := time.Now()
	p.audit.Started(ctx, msg.ID, domain.StepClassification, nil)

	categories, err := p.categories.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	result, err := p.reasoning.Classify(ctx, msg.Subject, msg.BodyText, categories)
	if err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepClassification, err)
		return nil, nil, err
	}

	var category *domain.Category
	for _, c := range categories {
		if c.Name == result.Category {
			category = c
			break
		}
	}

	now := time.Now()
	msg.CategoryName = result.Category
	msg.Priority = result.Priority
	msg.Sentiment = result.Sentiment
	msg.Confidence = result.Confidence
	msg.ExtractedInfo = result.ExtractedInfo
	msg.RequiresEscalation = result.RequiresEscalation
	msg.EscalationReason = result.EscalationReason
	msg.ProcessedAt = &now
	if category != nil {
		msg.CategoryID = &category.ID
		if category.EscalationRequired && !msg.RequiresEscalation {
			msg.RequiresEscalation = true
			msg.EscalationReason = fmt.Sprintf("category %s requires escalation", category.Name)
		}
	}

	if err := p.messages.Update(ctx, msg); err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepClassification, err)
		return nil, nil, err
	}

	p.audit.Completed(ctx, msg.ID, domain.StepClassification, map[string]any{
		"category":   result.Category,
		"confidence": result.Confidence,
		"priority":   string(result.Priority),
		"sentiment":  string(result.Sentiment),
		"escalate":   msg.RequiresEscalation,
	}, start)

	return result, category, nil
}

// escalate marks the message escalated and enqueues the notification
// fan-out. Generation never runs for escalated messages.
func (p *Pipeline) escalate(ctx context.Context, msg *domain.InboundMessage) error {
	start := time.Now()
	p.audit.Started(ctx, msg.ID, domain.StepEscalation, map[string]any{"reason": msg.EscalationReason})

	if _, err := p.transition(ctx, msg, domain.StatusEscalated); err != nil {
		return err
	}

	if _, err := p.producer.PublishEscalation(ctx, msg.ID); err != nil {
		// The message is escalated either way; only the notification is late.
		logger.WithMessageID(msg.ID).WithError(err).Error("Failed to enqueue escalation notification")
	}

	p.audit.Completed(ctx, msg.ID, domain.StepEscalation, map[string]any{"reason": msg.EscalationReason}, start)
	return nil
}

// generate drafts a reply using knowledge base context.
func (p *Pipeline) generate(ctx context.Context, msg *domain.InboundMessage, category *domain.Category) (*domain.ReplyResult, []*domain.KnowledgeArticle, error) {
	start := time.Now()
	p.audit.Started(ctx, msg.ID, domain.StepReplyGeneration, nil)

	var articles []*domain.KnowledgeArticle
	if category != nil {
		var err error
		articles, err = p.knowledge.Select(ctx, category.ID)
		if err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Warn("Knowledge lookup failed, generating without context")
			articles = nil
		}
	}

	result, err := p.reasoning.GenerateReply(ctx, &out.ReplyRequest{
		Subject:      msg.Subject,
		Body:         msg.BodyText,
		Category:     msg.CategoryName,
		CustomerName: msg.CustomerName(),
		Articles:     articles,
	})
	if err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepReplyGeneration, err)
		return nil, nil, err
	}

	p.audit.Completed(ctx, msg.ID, domain.StepReplyGeneration, map[string]any{
		"confidence":      result.Confidence,
		"requires_review": result.RequiresReview,
		"used_articles":   result.UsedArticles,
	}, start)

	return result, articles, nil
}

// persistDraft stores the generated draft and links consulted articles.
func (p *Pipeline) persistDraft(ctx context.Context, msg *domain.InboundMessage, generation *domain.ReplyResult, articles []*domain.KnowledgeArticle) (*domain.ReplyDraft, error) {
	draft := &domain.ReplyDraft{
		MessageID:      msg.ID,
		Body:           generation.Reply,
		Origin:         domain.OriginAI,
		Status:         domain.ReplyStatusDraft,
		Confidence:     generation.Confidence,
		RequiresReview: generation.RequiresReview,
		Reasoning:      generation.Reasoning,
	}
	for _, a := range articles {
		draft.ArticleIDs = append(draft.ArticleIDs, a.ID)
	}

	if err := p.replies.Create(ctx, draft); err != nil {
		return nil, err
	}

	if len(draft.ArticleIDs) > 0 {
		if err := p.replies.LinkArticles(ctx, draft.ID, draft.ArticleIDs); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to link knowledge articles")
		}
		if err := p.knowledge.MarkUsed(ctx, articles); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to bump article use counts")
		}
	}

	return draft, nil
}

// autoSend approves and sends the draft. A send failure is recorded but
// deliberately leaves the draft approved and the message in processing:
// resending automatically could double-deliver, so a human resolves it.
func (p *Pipeline) autoSend(ctx context.Context, msg *domain.InboundMessage, draft *domain.ReplyDraft) {
	start := time.Now()
	p.audit.Started(ctx, msg.ID, domain.StepAutoSend, map[string]any{"reply_id": draft.ID})

	if err := setDraftStatus(draft, domain.ReplyStatusApproved); err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepAutoSend, err)
		return
	}
	if err := p.replies.Update(ctx, draft); err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepAutoSend, err)
		return
	}

	if err := p.sender.SendReply(ctx, msg, draft); err != nil {
		p.audit.Failed(ctx, msg.ID, domain.StepAutoSend, err)
		logger.WithMessageID(msg.ID).WithError(err).Error("Auto-send failed, draft %d left approved", draft.ID)
		return
	}

	now := time.Now()
	if err := setDraftStatus(draft, domain.ReplyStatusSent); err != nil {
		logger.WithMessageID(msg.ID).WithError(err).Error("Reply sent but draft update failed")
	} else {
		draft.SentAt = &now
		if err := p.replies.Update(ctx, draft); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Error("Reply sent but draft update failed")
		}
	}

	if _, err := p.transition(ctx, msg, domain.StatusReplied); err != nil {
		logger.WithMessageID(msg.ID).WithError(err).Error("Reply sent but status update failed")
	} else {
		msg.RepliedAt = &now
		if err := p.messages.Update(ctx, msg); err != nil {
			logger.WithMessageID(msg.ID).WithError(err).Warn("Failed to stamp replied_at")
		}
	}

	p.audit.Completed(ctx, msg.ID, domain.StepAutoSend, map[string]any{"reply_id": draft.ID}, start)
}

// fail records the step failure and releases the claim so the message
// becomes eligible for another attempt.
func (p *Pipeline) fail(ctx context.Context, msg *domain.InboundMessage, step string, stepErr error) error {
	p.audit.Failed(ctx, msg.ID, step, stepErr)

	if _, err := p.transition(ctx, msg, domain.StatusNew); err != nil {
		logger.WithMessageID(msg.ID).WithError(err).Error("Failed to release claim after %s failure", step)
	}

	return stepErr
}

// transition moves msg along the status machine with a guarded CAS. The
// initial claim does not come through here: a forced reprocess claims
// from a terminal status on purpose, which the transition table forbids.
func (p *Pipeline) transition(ctx context.Context, msg *domain.InboundMessage, next domain.Status) (bool, error) {
	if !msg.Status.CanTransitionTo(next) {
		return false, apperr.Internal(fmt.Sprintf("illegal status transition %s -> %s", msg.Status, next))
	}
	won, err := p.messages.CompareAndSetStatus(ctx, msg.ID, msg.Status, next)
	if err != nil || !won {
		return won, err
	}
	msg.Status = next
	return true, nil
}

// setDraftStatus moves a draft along the reply status machine.
func setDraftStatus(draft *domain.ReplyDraft, next domain.ReplyStatus) error {
	if !draft.Status.CanTransitionTo(next) {
		return apperr.Internal(fmt.Sprintf("illegal draft transition %s -> %s", draft.Status, next))
	}
	draft.Status = next
	return nil
}
