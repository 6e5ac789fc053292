package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/logging"
)

// DefaultBatchSize caps the rows sent in one UNWIND statement
const DefaultBatchSize = 500

// nodeLabels are the labels that get a uniqueness constraint on key
var nodeLabels = []entity.Type{
	entity.TypeMessage,
	entity.TypeEmailAddress,
	entity.TypeDomain,
	entity.TypeAttachment,
	entity.TypeConversation,
}

// queryRunner executes one parameterized statement
type queryRunner func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jReporter mirrors each committed batch into Neo4j with idempotent MERGE
type Neo4jReporter struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	run       queryRunner
	logger    *slog.Logger
}

// NewNeo4jReporter connects to Neo4j and verifies connectivity
func NewNeo4jReporter(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jReporter, error) {
	if cfg.URI == "" || cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", cfg.URI, cfg.User)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 10
			c.ConnectionAcquisitionTimeout = 60 * time.Second
			c.MaxConnectionLifetime = time.Hour
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j at %s: %w", cfg.URI, err)
	}

	r := &Neo4jReporter{
		driver:    driver,
		database:  cfg.Database,
		batchSize: DefaultBatchSize,
		logger:    logging.Component("neo4j"),
	}
	r.run = r.execute
	r.logger.Info("neo4j reporter connected", "uri", cfg.URI, "database", cfg.Database)
	return r, nil
}

func newReporterWithRunner(run queryRunner, batchSize int) *Neo4jReporter {
	return &Neo4jReporter{
		batchSize: batchSize,
		run:       run,
		logger:    logging.Discard(),
	}
}

func (r *Neo4jReporter) execute(ctx context.Context, cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithWritersRouting())
	return err
}

// EnsureConstraints creates the key uniqueness constraint for every node label
func (r *Neo4jReporter) EnsureConstraints(ctx context.Context) error {
	for _, t := range nodeLabels {
		cypher, err := BuildConstraint(t.Label())
		if err != nil {
			return err
		}
		if err := r.run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", t.Label(), err)
		}
	}
	return nil
}

// ReportBatch implements ingestion.Reporter. Nodes are merged before edges
// so endpoints carry their properties when the edge statement runs.
func (r *Neo4jReporter) ReportBatch(ctx context.Context, entities []entity.Entity, relationships []entity.Relationship) error {
	labels, nodeRows := groupNodes(entities)
	for _, label := range labels {
		cypher, err := BuildMergeNodes(label)
		if err != nil {
			return err
		}
		if err := r.runChunked(ctx, cypher, "nodes", nodeRows[label]); err != nil {
			return fmt.Errorf("failed to merge %s nodes: %w", label, err)
		}
	}

	groups, edgeRows := groupEdges(relationships)
	for _, g := range groups {
		cypher, err := BuildMergeEdges(g.FromLabel, g.Kind, g.ToLabel)
		if err != nil {
			return err
		}
		if err := r.runChunked(ctx, cypher, "edges", edgeRows[g]); err != nil {
			return fmt.Errorf("failed to merge %s edges (%s -> %s): %w", g.Kind, g.FromLabel, g.ToLabel, err)
		}
	}

	r.logger.Debug("batch mirrored", "nodes", len(entities), "edges", len(relationships))
	return nil
}

func (r *Neo4jReporter) runChunked(ctx context.Context, cypher, param string, rows []map[string]any) error {
	size := r.batchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.run(ctx, cypher, map[string]any{param: rows[i:end]}); err != nil {
			return fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Close closes the driver
func (r *Neo4jReporter) Close(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Close(ctx)
}
