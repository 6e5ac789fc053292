package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/logging"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

type fakeStore struct {
	entities      map[string]entity.Entity
	relationships map[string]entity.Relationship

	addEntityCalls       int
	addRelationshipCalls int
	failAdd              error
	// failEntityCall makes the nth AddEntities call fail with failAdd
	failEntityCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:      make(map[string]entity.Entity),
		relationships: make(map[string]entity.Relationship),
	}
}

func (s *fakeStore) HasKey(ctx context.Context, key string) (bool, error) {
	_, isEntity := s.entities[key]
	_, isRel := s.relationships[key]
	return isEntity || isRel, nil
}

func (s *fakeStore) FindEntity(ctx context.Context, key string) (*entity.Entity, error) {
	e, ok := s.entities[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *fakeStore) AddEntities(ctx context.Context, entities []entity.Entity) error {
	if s.failAdd != nil && (s.failEntityCall == 0 || s.failEntityCall == s.addEntityCalls+1) {
		return s.failAdd
	}
	s.addEntityCalls++
	for _, e := range entities {
		if _, dup := s.entities[e.Key]; dup {
			panic("duplicate entity key committed: " + e.Key)
		}
		s.entities[e.Key] = e
	}
	return nil
}

func (s *fakeStore) AddRelationships(ctx context.Context, relationships []entity.Relationship) error {
	s.addRelationshipCalls++
	for _, r := range relationships {
		if _, dup := s.relationships[r.Key]; dup {
			panic("duplicate relationship key committed: " + r.Key)
		}
		s.relationships[r.Key] = r
	}
	return nil
}

type fakeSource struct {
	messages    []*msgraph.Message
	attachments map[string][]*msgraph.Attachment
	listCalls   []string
	listErr     error
}

func (s *fakeSource) IterateUserMessages(ctx context.Context, q msgraph.MessageQuery, fn func(*msgraph.Message) error) error {
	for _, m := range s.messages {
		// Hand out a copy so a run cannot mutate the fixture
		msg := *m
		if err := fn(&msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) ListAttachments(ctx context.Context, userID, messageID string) ([]*msgraph.Attachment, error) {
	s.listCalls = append(s.listCalls, messageID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.attachments[messageID], nil
}

func addr(address, name string) *msgraph.Recipient {
	return &msgraph.Recipient{EmailAddress: &msgraph.EmailAddress{Address: address, Name: name}}
}

func recipients(rs ...*msgraph.Recipient) []msgraph.Recipient {
	out := make([]msgraph.Recipient, 0, len(rs))
	for _, r := range rs {
		out = append(out, *r)
	}
	return out
}

func sampleMessage() *msgraph.Message {
	return &msgraph.Message{
		ID:             "AAMkAD-msg-1",
		Subject:        "Quarterly numbers",
		ConversationID: "AAQk-conv-1",
		From:           addr("Alice@Contoso.com", "Alice"),
		ToRecipients:   recipients(addr("bob@fabrikam.com; carol@mail.fabrikam.com", "")),
		CcRecipients:   recipients(addr("bob@fabrikam.com", "Bob")),
	}
}

func newTestPipeline(source Source, store Store, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewPipeline(source, store, opts...)
}

func relKey(from string, kind entity.Kind, to string) string {
	return entity.RelationshipKey(from, kind, to)
}

func TestProcessMessage_BuildsSubgraph(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(&fakeSource{}, store)

	stats := &Stats{}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", sampleMessage(), stats))

	assert.Len(t, store.entities, 7)
	for _, key := range []string{"AAMkAD-msg-1", "AAQk-conv-1", "alice@contoso.com", "bob@fabrikam.com", "carol@mail.fabrikam.com", "contoso.com", "fabrikam.com"} {
		assert.Contains(t, store.entities, key)
	}
	assert.Equal(t, "Alice", store.entities["alice@contoso.com"].Attributes["name"], "single address match keeps the provider name")

	msgKey := "AAMkAD-msg-1"
	wantRels := []string{
		relKey(msgKey, entity.KindSentFrom, "alice@contoso.com"),
		relKey("alice@contoso.com", entity.KindBelongsTo, "contoso.com"),
		relKey(msgKey, entity.KindSentTo, "bob@fabrikam.com"),
		relKey(msgKey, entity.KindSentTo, "carol@mail.fabrikam.com"),
		relKey("bob@fabrikam.com", entity.KindBelongsTo, "fabrikam.com"),
		relKey("carol@mail.fabrikam.com", entity.KindBelongsTo, "fabrikam.com"),
		relKey(msgKey, entity.KindCCTo, "bob@fabrikam.com"),
		relKey(msgKey, entity.KindBelongsTo, "AAQk-conv-1"),
	}
	assert.Len(t, store.relationships, len(wantRels))
	for _, key := range wantRels {
		assert.Contains(t, store.relationships, key)
	}

	assert.Equal(t, 1, store.addEntityCalls, "message subgraph is one commit")
	assert.Equal(t, 1, stats.MessagesIngested)
	assert.Equal(t, 7, stats.EntitiesCommitted)
	assert.Equal(t, 8, stats.RelationshipsCommitted)
}

func TestRun_IdempotentAcrossRuns(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{
		messages: []*msgraph.Message{sampleMessage()},
	}
	source.messages[0].HasAttachments = true
	source.attachments = map[string][]*msgraph.Attachment{
		"AAMkAD-msg-1": {{ID: "AAMkATT-0001", Name: "q3.xlsx"}},
	}
	p := newTestPipeline(source, store)

	first, err := p.Run(context.Background(), msgraph.MessageQuery{UserID: "u"})
	require.NoError(t, err)
	entitiesAfterFirst := len(store.entities)
	relsAfterFirst := len(store.relationships)

	second, err := p.Run(context.Background(), msgraph.MessageQuery{UserID: "u"})
	require.NoError(t, err)

	assert.Equal(t, entitiesAfterFirst, len(store.entities))
	assert.Equal(t, relsAfterFirst, len(store.relationships))
	assert.Equal(t, 1, first.MessagesIngested)
	assert.Equal(t, 1, second.MessagesSkipped)
	assert.Zero(t, second.EntitiesCommitted)
	assert.Equal(t, []string{"AAMkAD-msg-1"}, source.listCalls, "skipped message does not refetch attachments")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestProcessMessage_NoAttachmentFetchUnlessFlagged(t *testing.T) {
	source := &fakeSource{
		attachments: map[string][]*msgraph.Attachment{
			"AAMkAD-msg-1": {{ID: "AAMkATT-0001"}},
		},
	}
	store := newFakeStore()
	p := newTestPipeline(source, store)

	msg := sampleMessage()
	msg.HasAttachments = false
	require.NoError(t, p.ProcessMessage(context.Background(), "u", msg, &Stats{}))

	assert.Empty(t, source.listCalls)
	assert.NotContains(t, store.entities, "AAMkATT-0001")
}

func TestProcessMessage_AttachmentsCommittedIndividually(t *testing.T) {
	source := &fakeSource{
		attachments: map[string][]*msgraph.Attachment{
			"AAMkAD-msg-1": {
				{ID: "AAMkATT-0001", Name: "a.pdf"},
				{ID: "AAMkATT-0002"},
				{ID: ""},
			},
		},
	}
	store := newFakeStore()
	p := newTestPipeline(source, store)

	msg := sampleMessage()
	msg.HasAttachments = true
	stats := &Stats{}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", msg, stats))

	assert.Equal(t, 3, store.addEntityCalls, "message batch plus one commit per attachment")
	assert.Equal(t, 2, stats.AttachmentsCommitted)
	assert.Equal(t, "No attachment name", store.entities["AAMkATT-0002"].Attributes["name"])
	assert.Contains(t, store.relationships, relKey("AAMkAD-msg-1", entity.KindContains, "AAMkATT-0001"))
}

func TestProcessMessage_AttachmentListFailureKeepsMessage(t *testing.T) {
	source := &fakeSource{listErr: stderrors.New("throttled")}
	store := newFakeStore()
	p := newTestPipeline(source, store)

	msg := sampleMessage()
	msg.HasAttachments = true
	stats := &Stats{}
	err := p.ProcessMessage(context.Background(), "u", msg, stats)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.listErr)

	assert.Len(t, store.entities, 7, "message subgraph was committed before listing")
	assert.Len(t, store.relationships, 8)
	assert.Equal(t, 1, stats.MessagesIngested)
	assert.Zero(t, stats.AttachmentsCommitted)
}

func TestProcessMessage_AttachmentCommitFailureKeepsEarlierOnes(t *testing.T) {
	source := &fakeSource{
		attachments: map[string][]*msgraph.Attachment{
			"AAMkAD-msg-1": {
				{ID: "AAMkATT-0001", Name: "a.pdf"},
				{ID: "AAMkATT-0002", Name: "b.pdf"},
			},
		},
	}
	store := newFakeStore()
	store.failAdd = stderrors.New("disk full")
	store.failEntityCall = 3
	p := newTestPipeline(source, store)

	msg := sampleMessage()
	msg.HasAttachments = true
	stats := &Stats{}
	err := p.ProcessMessage(context.Background(), "u", msg, stats)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failAdd)
	assert.Contains(t, err.Error(), "AAMkATT-0002")

	assert.Contains(t, store.entities, "AAMkAD-msg-1")
	assert.Contains(t, store.entities, "AAMkATT-0001")
	assert.Contains(t, store.relationships, relKey("AAMkAD-msg-1", entity.KindContains, "AAMkATT-0001"))
	assert.NotContains(t, store.entities, "AAMkATT-0002")
	assert.NotContains(t, store.relationships, relKey("AAMkAD-msg-1", entity.KindContains, "AAMkATT-0002"))
	assert.Equal(t, 1, stats.AttachmentsCommitted)
	assert.Equal(t, 8, stats.EntitiesCommitted)
}

func TestProcessMessage_MessageKeyHeldAsRelationship(t *testing.T) {
	store := newFakeStore()
	// Shared key space: HasKey sees the key, FindEntity does not
	store.relationships["AAMkAD-msg-1"] = entity.Relationship{Key: "AAMkAD-msg-1"}
	p := newTestPipeline(&fakeSource{}, store)

	stats := &Stats{}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", sampleMessage(), stats))

	assert.Zero(t, stats.MessagesIngested)
	assert.Equal(t, 1, stats.MessagesSkipped)
	assert.Equal(t, 6, stats.EntitiesCommitted)
	assert.NotContains(t, store.entities, "AAMkAD-msg-1")
}

func TestProcessMessage_SkipsKeysAlreadyInStore(t *testing.T) {
	store := newFakeStore()
	store.entities["contoso.com"] = entity.NewDomain("contoso.com")
	p := newTestPipeline(&fakeSource{}, store)

	stats := &Stats{}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", sampleMessage(), stats))

	assert.Equal(t, 6, stats.EntitiesCommitted, "pre-existing domain is not re-added")
	assert.Contains(t, store.relationships, relKey("alice@contoso.com", entity.KindBelongsTo, "contoso.com"))
}

func TestProcessMessage_InvalidAndUnresolvable(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(&fakeSource{}, store)
	stats := &Stats{}

	require.NoError(t, p.ProcessMessage(context.Background(), "u", &msgraph.Message{Subject: "no id"}, stats))
	assert.Equal(t, 1, stats.MessagesInvalid)
	assert.Empty(t, store.entities)

	msg := &msgraph.Message{
		ID:             "AAMkAD-msg-2",
		ConversationID: "AAQk-conv-2",
		From:           addr("undisclosed recipients", "undisclosed recipients"),
		ToRecipients:   recipients(addr("'quoted@example.com", "")),
	}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", msg, stats))

	assert.Equal(t, 2, stats.UnresolvedAddresses)
	assert.Len(t, store.entities, 2, "message and conversation only")
	assert.Len(t, store.relationships, 1)
}

func TestProcessMessage_SenderNameDefault(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(&fakeSource{}, store)

	msg := &msgraph.Message{
		ID:             "AAMkAD-msg-3",
		ConversationID: "AAQk-conv-3",
		Sender:         addr("dave@example.org", ""),
	}
	require.NoError(t, p.ProcessMessage(context.Background(), "u", msg, &Stats{}))

	require.Contains(t, store.entities, "dave@example.org")
	assert.Equal(t, "NOT DEFINED", store.entities["dave@example.org"].Attributes["name"])
	assert.Contains(t, store.relationships, relKey("AAMkAD-msg-3", entity.KindSentFrom, "dave@example.org"))
}

func TestRun_AbortsOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failAdd = stderrors.New("disk full")
	source := &fakeSource{messages: []*msgraph.Message{sampleMessage()}}
	p := newTestPipeline(source, store)

	stats, err := p.Run(context.Background(), msgraph.MessageQuery{UserID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failAdd)
	assert.Equal(t, 1, stats.MessagesSeen)
	assert.Zero(t, stats.MessagesIngested)
}

type recordingReporter struct {
	batches [][]string
}

func (r *recordingReporter) ReportBatch(ctx context.Context, entities []entity.Entity, rels []entity.Relationship) error {
	keys := make([]string, 0, len(entities))
	for _, e := range entities {
		keys = append(keys, e.Key)
	}
	r.batches = append(r.batches, keys)
	return nil
}

func TestRun_ReportsCommittedBatches(t *testing.T) {
	var buf bytes.Buffer
	jsonl := NewJSONLinesReporter(&buf, "run-0001")
	rec := &recordingReporter{}

	source := &fakeSource{messages: []*msgraph.Message{sampleMessage()}}
	p := newTestPipeline(source, newFakeStore(),
		WithReporter(MultiReporter{rec, jsonl}),
		WithRunID(jsonl.RunID()),
	)

	stats, err := p.Run(context.Background(), msgraph.MessageQuery{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, "run-0001", stats.RunID)

	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 15)

	var first ReportEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, stats.RunID, first.RunID)
	assert.Equal(t, "entity", first.Kind)
	require.NotNil(t, first.Entity)
	assert.Nil(t, first.Entity.RawData, "provenance is not reported")
}

func TestNewJSONLinesReporter_GeneratesRunID(t *testing.T) {
	assert.NotEmpty(t, NewJSONLinesReporter(&bytes.Buffer{}, "").RunID())
}

func TestBatch_Dedupe(t *testing.T) {
	b := &Batch{}
	b.AddEntity(entity.NewDomain("example.com"))
	b.AddEntity(entity.NewEmailAddress("a@example.com", "A"))
	b.AddEntity(entity.NewDomain("example.com"))
	b.AddRelationship(entity.Relationship{Key: "k1"})
	b.AddRelationship(entity.Relationship{Key: "k1"})

	b.Dedupe()

	assert.Len(t, b.Entities, 2)
	assert.Len(t, b.Relationships, 1)
	assert.Equal(t, 3, b.Len())
}

func TestBatch_DiffAgainstStore(t *testing.T) {
	store := newFakeStore()
	store.entities["example.com"] = entity.NewDomain("example.com")
	store.relationships["k1"] = entity.Relationship{Key: "k1"}

	b := &Batch{}
	b.AddEntity(entity.NewDomain("example.com"))
	b.AddEntity(entity.NewDomain("example.org"))
	b.AddRelationship(entity.Relationship{Key: "k1"})
	b.AddRelationship(entity.Relationship{Key: "k2"})

	pending, err := b.DiffAgainstStore(context.Background(), store)
	require.NoError(t, err)

	require.Len(t, pending.Entities, 1)
	assert.Equal(t, "example.org", pending.Entities[0].Key)
	require.Len(t, pending.Relationships, 1)
	assert.Equal(t, "k2", pending.Relationships[0].Key)
	assert.Len(t, b.Entities, 2, "receiver untouched")
}
