package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/converter"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

type loadtestOptions struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	count       int64
	limit       int
	queries     []string
	requests    string
}

// loadStats is shared by all workers.
type loadStats struct {
	total    atomic.Int64
	success  atomic.Int64
	failures atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 4096),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func newLoadtestCmd() *cobra.Command {
	opts := &loadtestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Send search traffic to a running tfsearch serve",
		Long: `Runs concurrent GET /api/v1/search requests against a server and reports
throughput, latency percentiles and status codes. Queries come from --query,
otherwise from the requests file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runLoadtest(ctx, cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	f.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	f.Int64Var(&opts.count, "count", 0, "stop after this many requests (0 runs for --duration)")
	f.IntVar(&opts.limit, "limit", 5, "limit sent with every search")
	f.StringArrayVarP(&opts.queries, "query", "q", nil, "query to send (repeatable)")
	f.StringVar(&opts.requests, "requests", "requests.json", "requests file used when no --query is given")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts *loadtestOptions) error {
	queries := opts.queries
	if len(queries) == 0 {
		var err error
		if queries, err = converter.ReadRequests(opts.requests); err != nil {
			return err
		}
	}
	if len(queries) == 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "no queries: pass --query or a non-empty %s", opts.requests)
	}
	if opts.concurrency <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "concurrency must be positive, got %d", opts.concurrency)
	}
	base := strings.TrimRight(opts.baseURL, "/")

	fmt.Fprintln(out, "=== tfsearch load test ===")
	fmt.Fprintf(out, "Target:      %s\n", base)
	fmt.Fprintf(out, "Concurrency: %d\n", opts.concurrency)
	if opts.count > 0 {
		fmt.Fprintf(out, "Requests:    %d\n", opts.count)
	} else {
		fmt.Fprintf(out, "Duration:    %s\n", opts.duration)
	}
	fmt.Fprintf(out, "Queries:     %d unique\n\n", len(queries))

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	stats := newLoadStats()
	var issued atomic.Int64
	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				if opts.count > 0 && issued.Add(1) > opts.count {
					return
				}
				query := queries[next%len(queries)]
				next++
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", base, url.QueryEscape(query), opts.limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				began := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(began)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.record(elapsed, 0, err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()

	printLoadReport(out, stats, time.Since(start))
	if stats.total.Load() == 0 {
		return fmt.Errorf("no requests completed against %s", base)
	}
	return nil
}

func printLoadReport(out io.Writer, stats *loadStats, elapsed time.Duration) {
	total := stats.total.Load()
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(out, "Errors:          %d\n", stats.failures.Load())
	if total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(stats.failures.Load())/float64(total)*100)
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", latencyPercentile(latencies, 50))
		fmt.Fprintf(out, "P95:    %s\n", latencyPercentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", latencyPercentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
	}

	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, stats.codes[code])
	}
}

// latencyPercentile uses the nearest-rank method on sorted input.
func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
