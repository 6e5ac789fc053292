package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/mailgraph/internal/cache"
	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/graph"
	"github.com/rohankatakam/mailgraph/internal/ingestion"
	"github.com/rohankatakam/mailgraph/internal/logging"
	"github.com/rohankatakam/mailgraph/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a mailbox window into the entity graph",
	Long: `Ingest lists every message the configured user received inside the
date window and commits messages, addresses, domains, conversations and
attachments to the configured store. Keys already present are skipped, so
re-running the same window is safe.

Examples:
  # Use the window from config
  mailgraph ingest

  # Override the mailbox and window
  mailgraph ingest --user jane@contoso.com --start 2024-01-01 --end 2024-02-01

  # Also write every committed entity and relationship as JSON lines
  mailgraph ingest --report report.jsonl`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("user", "", "Mailbox user id or principal name (overrides exchange.user_id)")
	ingestCmd.Flags().String("start", "", "Window start, RFC3339 or YYYY-MM-DD (overrides exchange.start_date)")
	ingestCmd.Flags().String("end", "", "Window end, RFC3339 or YYYY-MM-DD (overrides exchange.end_date)")
	ingestCmd.Flags().String("report", "", "Write committed records as JSON lines to this file (- for stdout)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applyIngestFlags(cmd, cfg)

	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	query, err := ingestion.QueryFromConfig(cfg)
	if err != nil {
		return err
	}
	result := cfg.Validate(config.ValidationContextIngest)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if result.HasErrors() {
		return result
	}

	client := newGraphClient(cfg)
	if err := ingestion.ValidateInvocation(ctx, cfg, client); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, closeKeys, err := openKeyCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeKeys()
	cached := cache.NewCachedStore(store, keys)

	runID := uuid.New().String()
	reporters, closeReporters, err := openReporters(ctx, cmd, cfg, runID)
	if err != nil {
		return err
	}
	defer closeReporters()

	logger.WithFields(logrus.Fields{
		"user":    query.UserID,
		"start":   query.StartDate.Format(time.RFC3339),
		"end":     query.EndDate.Format(time.RFC3339),
		"backend": cfg.Storage.Backend,
	}).Info("Starting ingestion")

	pipeline := ingestion.NewPipeline(client, cached,
		ingestion.WithReporter(reporters),
		ingestion.WithLogger(logging.Component("ingestion")),
		ingestion.WithRunID(runID),
	)
	stats, err := pipeline.Run(ctx, query)
	if stats != nil {
		logStats(stats)
	}
	if n := cached.Stale(); n > 0 {
		logger.WithFields(logrus.Fields{
			"stale_keys": n,
			"store_id":   store.ID(),
		}).Warn("Shared key cache listed keys the store does not hold; the store may have lost writes")
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not count stored records")
	} else {
		logger.WithFields(logrus.Fields{
			"entities":      counts.Entities,
			"relationships": counts.Relationships,
		}).Info("Store totals")
	}

	fmt.Printf("✅ Ingestion complete in %v: %d messages ingested, %d entities and %d relationships uploaded\n",
		time.Since(startTime).Round(time.Millisecond),
		stats.MessagesIngested, stats.EntitiesCommitted, stats.RelationshipsCommitted)
	return nil
}

func applyIngestFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		cfg.Exchange.UserID = v
	}
	if v, _ := cmd.Flags().GetString("start"); v != "" {
		cfg.Exchange.StartDate = v
	}
	if v, _ := cmd.Flags().GetString("end"); v != "" {
		cfg.Exchange.EndDate = v
	}
}

// openKeyCache connects the shared Redis key cache. It returns nil when
// Redis is disabled; the cached store then only remembers this run's keys.
func openKeyCache(ctx context.Context, rc config.RedisConfig) (cache.KeyCache, func(), error) {
	if !rc.Enabled {
		return nil, func() {}, nil
	}

	keys, err := cache.NewRedisKeyCache(ctx, rc)
	if err != nil {
		return nil, nil, err
	}
	return keys, func() {
		if err := keys.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis")
		}
	}, nil
}

func openReporters(ctx context.Context, cmd *cobra.Command, cfg *config.Config, runID string) (ingestion.Reporter, func(), error) {
	var (
		reporters ingestion.MultiReporter
		closers   []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		var w io.Writer = os.Stdout
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create report file: %w", err)
			}
			closers = append(closers, func() { f.Close() })
			w = f
		}
		jsonl := ingestion.NewJSONLinesReporter(w, runID)
		logger.WithField("run_id", jsonl.RunID()).Info("Writing JSON lines report")
		reporters = append(reporters, jsonl)
	}

	if cfg.Neo4j.Enabled {
		neo, err := graph.NewNeo4jReporter(ctx, cfg.Neo4j)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { neo.Close(context.Background()) })
		if err := neo.EnsureConstraints(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		reporters = append(reporters, neo)
	}

	return reporters, closeAll, nil
}

func logStats(stats *ingestion.Stats) {
	logger.WithFields(logrus.Fields{
		"run_id":                 stats.RunID,
		"messages_seen":          stats.MessagesSeen,
		"messages_skipped":       stats.MessagesSkipped,
		"messages_invalid":       stats.MessagesInvalid,
		"messages_ingested":      stats.MessagesIngested,
		"entities_uploaded":      stats.EntitiesCommitted,
		"relationships_uploaded": stats.RelationshipsCommitted,
		"attachments":            stats.AttachmentsCommitted,
		"unresolved_addresses":   stats.UnresolvedAddresses,
		"duration":               stats.Duration.Round(time.Millisecond),
	}).Info("Ingestion summary")
}
