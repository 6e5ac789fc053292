package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rohankatakam/mailgraph/internal/address"
	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

// Display name used when the provider sends an address without one
const undefinedName = "NOT DEFINED"

// Stats summarizes one run
type Stats struct {
	RunID                  string
	MessagesSeen           int
	MessagesSkipped        int // Already present in the store
	MessagesInvalid        int // Missing an id
	MessagesIngested       int
	EntitiesCommitted      int
	RelationshipsCommitted int
	AttachmentsCommitted   int
	UnresolvedAddresses    int
	Duration               time.Duration
}

// Pipeline turns mailbox messages into entities and relationships and commits
// them exactly once per key. A pipeline is driven from a single goroutine.
type Pipeline struct {
	source   Source
	store    Store
	resolver *address.Resolver
	reporter Reporter
	runID    string
	logger   *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithReporter sends every committed batch to r
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRunID stamps runs with id instead of a fresh one, so reporters and
// logs created by the caller share it
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// NewPipeline creates a pipeline reading from source and committing to store
func NewPipeline(source Source, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		store:    store,
		reporter: NopReporter{},
		logger:   slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.resolver = address.NewResolver(p.logger)
	return p
}

// Run ingests every message matched by q. It stops at the first store or
// upstream failure; everything committed before that stays committed.
func (p *Pipeline) Run(ctx context.Context, q msgraph.MessageQuery) (*Stats, error) {
	start := time.Now()
	runID := p.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	stats := &Stats{RunID: runID}
	logger := p.logger.With("run_id", stats.RunID, "user_id", q.UserID)

	logger.Info("starting mailbox ingestion",
		"start_date", q.StartDate,
		"end_date", q.EndDate,
	)

	err := p.source.IterateUserMessages(ctx, q, func(m *msgraph.Message) error {
		return p.ProcessMessage(ctx, q.UserID, m, stats)
	})
	stats.Duration = time.Since(start)
	if err != nil {
		logger.Error("mailbox ingestion failed",
			"messages_seen", stats.MessagesSeen,
			"messages_ingested", stats.MessagesIngested,
			"error", err,
		)
		return stats, fmt.Errorf("ingest mailbox %s: %w", q.UserID, err)
	}

	logger.Info("mailbox ingestion completed",
		"duration", stats.Duration.String(),
		"messages_seen", stats.MessagesSeen,
		"messages_skipped", stats.MessagesSkipped,
		"messages_ingested", stats.MessagesIngested,
		"entities", stats.EntitiesCommitted,
		"relationships", stats.RelationshipsCommitted,
		"attachments", stats.AttachmentsCommitted,
	)
	return stats, nil
}

// ProcessMessage ingests one message and, if flagged, its attachments
func (p *Pipeline) ProcessMessage(ctx context.Context, userID string, m *msgraph.Message, stats *Stats) error {
	stats.MessagesSeen++

	if m.ID == "" {
		p.logger.Warn("skipping message without id", "conversation_id", m.ConversationID)
		stats.MessagesInvalid++
		return nil
	}

	message := entity.NewMessage(m)

	existing, err := p.store.FindEntity(ctx, message.Key)
	if err != nil {
		return fmt.Errorf("look up message %s: %w", m.ID, err)
	}
	if existing != nil {
		p.logger.Debug("message already ingested", "message_key", message.Key)
		stats.MessagesSkipped++
		return nil
	}

	batch, err := p.buildSubgraph(m, message, stats)
	if err != nil {
		return err
	}
	committed, err := p.commit(ctx, batch, stats)
	if err != nil {
		return fmt.Errorf("commit message %s: %w", m.ID, err)
	}
	if committed.hasEntity(message.Key) {
		stats.MessagesIngested++
	} else {
		p.logger.Warn("message key already held by the store", "message_key", message.Key)
		stats.MessagesSkipped++
	}

	if !m.HasAttachments {
		return nil
	}
	return p.ingestAttachments(ctx, userID, m.ID, message, stats)
}

// buildSubgraph assembles the message, its parties, their domains and the
// conversation into one deduplicated batch.
func (p *Pipeline) buildSubgraph(m *msgraph.Message, message entity.Entity, stats *Stats) (*Batch, error) {
	batch := &Batch{}
	batch.AddEntity(message)

	sender := m.From
	if sender == nil || sender.EmailAddress == nil {
		sender = m.Sender
	}
	if sender != nil && sender.EmailAddress != nil {
		if err := p.addParties(batch, message, entity.KindSentFrom, *sender.EmailAddress, stats); err != nil {
			return nil, err
		}
	}

	for _, r := range m.ToRecipients {
		if r.EmailAddress == nil {
			continue
		}
		if err := p.addParties(batch, message, entity.KindSentTo, *r.EmailAddress, stats); err != nil {
			return nil, err
		}
	}
	for _, r := range m.CcRecipients {
		if r.EmailAddress == nil {
			continue
		}
		if err := p.addParties(batch, message, entity.KindCCTo, *r.EmailAddress, stats); err != nil {
			return nil, err
		}
	}

	conversation := entity.NewConversation(m.ConversationID)
	rel, err := entity.NewRelationship(message, entity.KindBelongsTo, conversation)
	if err != nil {
		return nil, err
	}
	batch.AddEntity(conversation)
	batch.AddRelationship(rel)

	batch.Dedupe()
	return batch, nil
}

// addParties resolves one raw address field and links every result to the
// message with kind, plus each address to its domain.
func (p *Pipeline) addParties(batch *Batch, message entity.Entity, kind entity.Kind, raw msgraph.EmailAddress, stats *Stats) error {
	resolved := p.resolver.Resolve(address.Raw{Address: raw.Address, Name: raw.Name})
	if len(resolved) == 0 {
		stats.UnresolvedAddresses++
		return nil
	}

	for _, r := range resolved {
		name := r.Name
		if name == "" {
			name = undefinedName
		}
		addr := entity.NewEmailAddress(r.Address, name)

		rel, err := entity.NewRelationship(message, kind, addr)
		if err != nil {
			return err
		}
		batch.AddEntity(addr)
		batch.AddRelationship(rel)

		domain, ok := address.Domain(r.Address)
		if !ok {
			continue
		}
		dom := entity.NewDomain(domain)
		belongs, err := entity.NewRelationship(addr, entity.KindBelongsTo, dom)
		if err != nil {
			return err
		}
		batch.AddEntity(dom)
		batch.AddRelationship(belongs)
	}
	return nil
}

// ingestAttachments commits each attachment with its CONTAINS edge on its own
func (p *Pipeline) ingestAttachments(ctx context.Context, userID, messageID string, message entity.Entity, stats *Stats) error {
	attachments, err := p.source.ListAttachments(ctx, userID, messageID)
	if err != nil {
		return fmt.Errorf("list attachments of message %s: %w", messageID, err)
	}

	for _, a := range attachments {
		if a.ID == "" {
			p.logger.Warn("skipping attachment without id", "message_key", message.Key)
			continue
		}

		att := entity.NewAttachment(a)
		rel, err := entity.NewRelationship(message, entity.KindContains, att)
		if err != nil {
			return err
		}

		batch := &Batch{}
		batch.AddEntity(att)
		batch.AddRelationship(rel)

		committed, err := p.commit(ctx, batch, stats)
		if err != nil {
			return fmt.Errorf("commit attachment %s: %w", a.ID, err)
		}
		if committed.hasEntity(att.Key) {
			stats.AttachmentsCommitted++
		}
	}
	return nil
}

// commit drops keys the store already holds, writes the rest and reports it.
// It returns the part of batch that was written.
func (p *Pipeline) commit(ctx context.Context, batch *Batch, stats *Stats) (*Batch, error) {
	pending, err := batch.DiffAgainstStore(ctx, p.store)
	if err != nil {
		return nil, err
	}
	if pending.Len() == 0 {
		return pending, nil
	}

	if err := pending.Commit(ctx, p.store); err != nil {
		return nil, err
	}
	stats.EntitiesCommitted += len(pending.Entities)
	stats.RelationshipsCommitted += len(pending.Relationships)

	if err := p.reporter.ReportBatch(ctx, pending.Entities, pending.Relationships); err != nil {
		return pending, fmt.Errorf("report batch: %w", err)
	}
	return pending, nil
}
