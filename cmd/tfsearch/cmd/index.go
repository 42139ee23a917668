package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
)

type termSummary struct {
	Term        string `json:"term"`
	Documents   int    `json:"documents"`
	Occurrences int    `json:"occurrences"`
}

type indexReport struct {
	Stats    indexer.BuildStats `json:"stats"`
	TopTerms []termSummary      `json:"top_terms"`
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var (
		top        int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg, nil)
			if err != nil {
				return err
			}
			report := indexReport{
				Stats:    eng.builder.Rebuild(ctx, eng.documents()),
				TopTerms: topTerms(eng.index.Snapshot(), top),
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printIndexReport(cmd, report)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of most frequent terms to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the report as JSON")
	return cmd
}

// topTerms ranks terms by total occurrences, then by term.
func topTerms(entries []index.TermEntry, n int) []termSummary {
	terms := make([]termSummary, 0, len(entries))
	for _, e := range entries {
		s := termSummary{Term: e.Term, Documents: len(e.Postings)}
		for _, p := range e.Postings {
			s.Occurrences += p.Frequency
		}
		terms = append(terms, s)
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Occurrences != terms[j].Occurrences {
			return terms[i].Occurrences > terms[j].Occurrences
		}
		return terms[i].Term < terms[j].Term
	})
	if n >= 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func printIndexReport(cmd *cobra.Command, r indexReport) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "generation: %d\n", r.Stats.Generation)
	fmt.Fprintf(out, "documents:  %d (%d unreadable)\n", r.Stats.Documents, r.Stats.Unreadable)
	fmt.Fprintf(out, "tokens:     %d\n", r.Stats.Tokens)
	fmt.Fprintf(out, "terms:      %d\n", r.Stats.Terms)
	fmt.Fprintf(out, "duration:   %s\n", r.Stats.Duration)
	if len(r.TopTerms) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tOCCURRENCES\tDOCUMENTS")
	for _, t := range r.TopTerms {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Term, t.Occurrences, t.Documents)
	}
	return tw.Flush()
}
