// Package cmd provides the tfsearch CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd creates the root command. Without a subcommand it runs the
// batch search.
func NewRootCmd() *cobra.Command {
	root := &rootOptions{}
	search := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "tfsearch",
		Short: "Term-frequency search over a small document set",
		Long: `tfsearch builds an inverted index over the files listed in config.json
and ranks documents for each query by summed term frequency.

Run without a subcommand to answer requests.json into answers.json.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, root, search)
		},
	}
	cmd.SetVersionTemplate("tfsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&root.configPath, "config", "c", "config.json", "path to the config file")
	cmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&root.logFormat, "log-format", "", "override logging.format (text, json, auto)")
	search.bind(cmd)

	cmd.AddCommand(newSearchCmd(root))
	cmd.AddCommand(newIndexCmd(root))
	cmd.AddCommand(newServeCmd(root))
	cmd.AddCommand(newLoadtestCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the config and installs the default logger on the command's
// stderr, so stdout carries only command output.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// engine is the index, its builder and the query executor over it.
type engine struct {
	index    *index.InvertedIndex
	builder  *indexer.Builder
	executor *executor.Executor
	files    []string
}

func newEngine(cfg *config.Config, m *metrics.Metrics) (*engine, error) {
	mode, err := parser.ParseMatchMode(cfg.Search.MatchMode)
	if err != nil {
		return nil, fmt.Errorf("search.matchMode: %w", err)
	}
	idx := index.New()
	opts := []executor.Option{}
	if m != nil {
		opts = append(opts, executor.WithMetrics(m))
	}
	return &engine{
		index:    idx,
		builder:  indexer.NewBuilder(idx, cfg.Indexer, m),
		executor: executor.New(idx, mode, opts...),
		files:    cfg.Files,
	}, nil
}

// documents reopens the configured files on every call, so a rebuild
// sees the files as they are now.
func (e *engine) documents() []corpus.Document {
	return corpus.FromPaths(e.files)
}
