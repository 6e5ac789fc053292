package graph

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

type recordedQuery struct {
	cypher string
	params map[string]any
}

type recorder struct {
	queries []recordedQuery
	failOn  string
}

func (r *recorder) run(_ context.Context, cypher string, params map[string]any) error {
	if r.failOn != "" && strings.Contains(cypher, r.failOn) {
		return stderrors.New("neo4j unavailable")
	}
	r.queries = append(r.queries, recordedQuery{cypher: cypher, params: params})
	return nil
}

func sampleBatch(t *testing.T) ([]entity.Entity, []entity.Relationship) {
	msg := entity.NewMessage(&msgraph.Message{ID: "AAMkAD-msg-1", Subject: "Status", ConversationID: "AAQk-conv-1"})
	jane := entity.NewEmailAddress("jane@contoso.com", "Jane")
	bob := entity.NewEmailAddress("bob@contoso.com", "Bob")
	dom := entity.NewDomain("contoso.com")

	var rels []entity.Relationship
	for _, pair := range []struct {
		from entity.Entity
		kind entity.Kind
		to   entity.Entity
	}{
		{msg, entity.KindSentFrom, jane},
		{msg, entity.KindSentTo, bob},
		{jane, entity.KindBelongsTo, dom},
		{bob, entity.KindBelongsTo, dom},
	} {
		rel, err := entity.NewRelationship(pair.from, pair.kind, pair.to)
		require.NoError(t, err)
		rels = append(rels, rel)
	}
	return []entity.Entity{msg, jane, bob, dom}, rels
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Message", true},
		{"SENT_FROM", true},
		{"_private", true},
		{"", false},
		{"1Message", false},
		{"Message) DETACH DELETE (n", false},
		{"CC-TO", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidIdentifier(tt.input))
		})
	}
}

func TestBuildMergeNodes(t *testing.T) {
	cypher, err := BuildMergeNodes("EmailAddress")
	require.NoError(t, err)
	assert.Contains(t, cypher, "UNWIND $nodes AS node")
	assert.Contains(t, cypher, "MERGE (n:EmailAddress {key: node.key})")
	assert.Contains(t, cypher, "SET n += node.props")

	_, err = BuildMergeNodes("Bad Label")
	assert.Error(t, err)
}

func TestBuildMergeEdges(t *testing.T) {
	cypher, err := BuildMergeEdges("Message", entity.KindCCTo, "EmailAddress")
	require.NoError(t, err)
	assert.Contains(t, cypher, "MERGE (from:Message {key: edge.from})")
	assert.Contains(t, cypher, "MERGE (to:EmailAddress {key: edge.to})")
	assert.Contains(t, cypher, "MERGE (from)-[r:CC_TO]->(to)")
	assert.NotContains(t, cypher, "MATCH", "missing endpoints must not drop the edge")

	_, err = BuildMergeEdges("Message", entity.Kind("CC TO"), "EmailAddress")
	assert.Error(t, err)
}

func TestReportBatch_EdgeWithoutNodesInBatch(t *testing.T) {
	rec := &recorder{}
	reporter := newReporterWithRunner(rec.run, DefaultBatchSize)
	_, rels := sampleBatch(t)

	// Attachment batches carry the message only as an edge endpoint
	require.NoError(t, reporter.ReportBatch(context.Background(), nil, rels[:1]))

	require.Len(t, rec.queries, 1)
	q := rec.queries[0]
	assert.Contains(t, q.cypher, "MERGE (from:Message {key: edge.from})")
	assert.Contains(t, q.cypher, "MERGE (to:EmailAddress {key: edge.to})")
	edges := q.params["edges"].([]map[string]any)
	require.Len(t, edges, 1)
	assert.Equal(t, "AAMkAD-msg-1", edges[0]["from"])
}

func TestBuildConstraint(t *testing.T) {
	cypher, err := BuildConstraint("EmailAddress")
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE CONSTRAINT email_address_key_unique IF NOT EXISTS FOR (n:EmailAddress) REQUIRE n.key IS UNIQUE",
		cypher)
}

func TestNodeProperties_DropsUnsupportedValues(t *testing.T) {
	e := entity.Entity{
		Key:  "k-00000001",
		Type: entity.TypeAttachment,
		Attributes: map[string]any{
			"name":   "report.pdf",
			"size":   int64(10),
			"nested": map[string]any{"a": 1},
			"empty":  nil,
			"we-ird": "x",
		},
		RawData: []entity.RawData{{Name: "default", Data: []byte(`{}`)}},
	}

	props := nodeProperties(e)

	assert.Equal(t, map[string]any{
		"key":  "k-00000001",
		"type": "exchange_attachment",
		"name": "report.pdf",
		"size": int64(10),
	}, props)
}

func TestReportBatch_NodesBeforeEdges(t *testing.T) {
	rec := &recorder{}
	reporter := newReporterWithRunner(rec.run, DefaultBatchSize)
	entities, rels := sampleBatch(t)

	require.NoError(t, reporter.ReportBatch(context.Background(), entities, rels))

	// Domain, EmailAddress, Message nodes then three edge groups
	require.Len(t, rec.queries, 6)
	for _, q := range rec.queries[:3] {
		assert.Contains(t, q.cypher, "UNWIND $nodes")
	}
	for _, q := range rec.queries[3:] {
		assert.Contains(t, q.cypher, "UNWIND $edges")
	}

	assert.Contains(t, rec.queries[1].cypher, "MERGE (n:EmailAddress")
	addresses := rec.queries[1].params["nodes"].([]map[string]any)
	assert.Len(t, addresses, 2)

	belongs := rec.queries[3]
	assert.Contains(t, belongs.cypher, "(from:EmailAddress")
	assert.Contains(t, belongs.cypher, "[r:BELONGS_TO]")
	edges := belongs.params["edges"].([]map[string]any)
	require.Len(t, edges, 2)
	assert.Equal(t, "contoso.com", edges[0]["to"])
	assert.Equal(t, "email_address_belongs_to_email_domain", edges[0]["type"])
}

func TestReportBatch_Chunks(t *testing.T) {
	rec := &recorder{}
	reporter := newReporterWithRunner(rec.run, 2)

	var addrs []entity.Entity
	for _, a := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"} {
		addrs = append(addrs, entity.NewEmailAddress(a, a))
	}

	require.NoError(t, reporter.ReportBatch(context.Background(), addrs, nil))

	require.Len(t, rec.queries, 3)
	assert.Len(t, rec.queries[2].params["nodes"], 1)
}

func TestReportBatch_PropagatesErrors(t *testing.T) {
	rec := &recorder{failOn: "[r:SENT_TO]"}
	reporter := newReporterWithRunner(rec.run, DefaultBatchSize)
	entities, rels := sampleBatch(t)

	err := reporter.ReportBatch(context.Background(), entities, rels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENT_TO")
}

func TestReportBatch_Empty(t *testing.T) {
	rec := &recorder{}
	reporter := newReporterWithRunner(rec.run, DefaultBatchSize)

	require.NoError(t, reporter.ReportBatch(context.Background(), nil, nil))
	assert.Empty(t, rec.queries)
}

func TestEnsureConstraints(t *testing.T) {
	rec := &recorder{}
	reporter := newReporterWithRunner(rec.run, DefaultBatchSize)

	require.NoError(t, reporter.EnsureConstraints(context.Background()))
	require.Len(t, rec.queries, 5)
	assert.Contains(t, rec.queries[0].cypher, "FOR (n:Message)")
}

func TestNewNeo4jReporter_RequiresCredentials(t *testing.T) {
	_, err := NewNeo4jReporter(context.Background(), config.Neo4jConfig{URI: "bolt://localhost:7687"})
	assert.Error(t, err)
}

func TestNeo4jReporter_Integration(t *testing.T) {
	uri := os.Getenv("MAILGRAPH_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("MAILGRAPH_TEST_NEO4J_URI not set, skipping test")
	}

	ctx := context.Background()
	reporter, err := NewNeo4jReporter(ctx, config.Neo4jConfig{
		URI:      uri,
		User:     os.Getenv("MAILGRAPH_TEST_NEO4J_USER"),
		Password: os.Getenv("MAILGRAPH_TEST_NEO4J_PASSWORD"),
		Database: "neo4j",
	})
	require.NoError(t, err)
	defer reporter.Close(ctx)

	require.NoError(t, reporter.EnsureConstraints(ctx))
	entities, rels := sampleBatch(t)
	require.NoError(t, reporter.ReportBatch(ctx, entities, rels))
	require.NoError(t, reporter.ReportBatch(ctx, entities, rels))
}
