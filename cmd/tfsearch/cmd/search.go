package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/converter"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/postgres"
)

type searchOptions struct {
	requests string
	answers  string
}

func (o *searchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.requests, "requests", "", "requests file (default from config, then requests.json)")
	cmd.Flags().StringVar(&o.answers, "answers", "", "answers file (default from config, then answers.json)")
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Index the configured files and answer every request",
		Long: `Builds the index from the files in the config, runs every query in the
requests file and writes the ranked answers, at most config.max_responses
per request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, root, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, opts *searchOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	requestsPath := firstNonEmpty(opts.requests, cfg.Requests)
	answersPath := firstNonEmpty(opts.answers, cfg.Answers)
	out := cmd.OutOrStdout()

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Starting %s...\n", engineTitle(cfg))
	fmt.Fprintln(out, "Indexing documents...")
	stats := eng.builder.Rebuild(ctx, eng.documents())

	fmt.Fprintln(out, "Processing requests...")
	requests, err := converter.ReadRequests(requestsPath)
	if err != nil {
		return err
	}

	tracker, closeTracker := newBatchTracker(ctx, cfg)
	view := eng.executor.Current()
	results := make([][]ranker.RelativeIndex, len(requests))
	for i, query := range requests {
		start := time.Now()
		plan := parser.Parse(query)
		result := eng.executor.ExecuteOn(ctx, view, plan, cfg.Engine.MaxResponses)
		results[i] = result.Results
		if tracker != nil {
			tracker.Track(analytics.SearchEvent{
				Type:       analytics.EventSearch,
				Source:     analytics.SourceBatch,
				Query:      query,
				Terms:      plan.Terms,
				TotalHits:  result.TotalHits,
				Returned:   len(result.Results),
				LatencyUs:  time.Since(start).Microseconds(),
				Generation: result.Generation,
				Timestamp:  time.Now().UTC(),
			})
		}
	}
	if tracker != nil {
		tracker.Track(analytics.NewRebuildEvent(stats))
	}
	closeTracker()

	fmt.Fprintln(out, "Saving results...")
	answers := converter.Format(results)
	if err := converter.WriteAnswers(ctx, answersPath, answers); err != nil {
		return err
	}

	if cfg.Archive.Enabled {
		if err := archiveRun(ctx, cfg, archive.Run{
			Generation: stats.Generation,
			Documents:  stats.Documents,
			Requests:   len(requests),
			Answers:    answers,
		}); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Search completed. Results saved to %s\n", answersPath)
	return nil
}

// newBatchTracker returns a collector for batch search events, or nil when
// analytics is off. Without Kafka the events are aggregated locally and the
// summary is logged on close.
func newBatchTracker(ctx context.Context, cfg *config.Config) (*analytics.Collector, func()) {
	if !cfg.Analytics.Enabled {
		return nil, func() {}
	}
	if cfg.Analytics.Kafka {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		return collector, func() {
			collector.Close()
			if err := producer.Close(); err != nil {
				slog.Warn("closing analytics producer", "error", err)
			}
		}
	}
	agg := analytics.NewAggregator(nil)
	collector := analytics.NewCollector(analytics.LocalPublisher{Aggregator: agg}, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	return collector, func() {
		collector.Close()
		s := agg.Stats()
		slog.Info("batch analytics",
			"searches", s.TotalSearches,
			"zero_results", s.ZeroResultCount,
			"p95_latency_us", s.P95LatencyUs,
			"top_queries", s.TopQueries,
		)
	}
}

func archiveRun(ctx context.Context, cfg *config.Config, run archive.Run) error {
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer client.Close()

	store := archive.NewStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if _, err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func engineTitle(cfg *config.Config) string {
	if cfg.Engine.Version == "" {
		return cfg.Engine.Name
	}
	return cfg.Engine.Name + " v" + cfg.Engine.Version
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
