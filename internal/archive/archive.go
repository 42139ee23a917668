// Package archive keeps a history of batch search runs in PostgreSQL.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/converter"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/resilience"
)

// ErrNoRuns is returned by Latest when nothing has been archived yet.
var ErrNoRuns = errors.New("no archived runs")

const schema = `
CREATE TABLE IF NOT EXISTS search_runs (
	id          BIGSERIAL PRIMARY KEY,
	generation  BIGINT      NOT NULL,
	documents   INT         NOT NULL,
	requests    INT         NOT NULL,
	answers     JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Run is one batch of requests answered against one index generation.
type Run struct {
	ID         int64             `json:"id"`
	Generation uint64            `json:"generation"`
	Documents  int               `json:"documents"`
	Requests   int               `json:"requests"`
	Answers    converter.Answers `json:"answers"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Store struct {
	client *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			Retryable:    retryable,
		},
		logger: slog.Default().With("component", "run-archive"),
	}
}

// EnsureSchema creates the search_runs table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.client.EnsureSchema(ctx, "search_runs", schema)
}

// SaveRun inserts run and returns its id. Transient failures are retried.
func (s *Store) SaveRun(ctx context.Context, run Run) (int64, error) {
	payload, err := encodeAnswers(run.Answers)
	if err != nil {
		return 0, err
	}
	var id int64
	err = resilience.Retry(ctx, "archive.save_run", s.retry, func() error {
		return s.client.InTx(ctx, func(tx *sql.Tx) error {
			return tx.QueryRowContext(ctx,
				`INSERT INTO search_runs (generation, documents, requests, answers)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				int64(run.Generation), run.Documents, run.Requests, string(payload),
			).Scan(&id)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("saving search run: %w", err)
	}
	s.logger.Info("search run archived",
		"id", id,
		"generation", run.Generation,
		"requests", run.Requests,
	)
	return id, nil
}

// Latest returns the most recently archived run.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	var (
		run        Run
		generation int64
		payload    []byte
	)
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT id, generation, documents, requests, answers, created_at
		 FROM search_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&run.ID, &generation, &run.Documents, &run.Requests, &payload, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest search run: %w", err)
	}
	run.Generation = uint64(generation)
	if run.Answers, err = decodeAnswers(payload); err != nil {
		return nil, err
	}
	return &run, nil
}

// retryable reports whether a database error is transient: connection
// failures, serialization conflicts, resource exhaustion and operator
// intervention. Anything that is not a server error is assumed to be a
// network problem.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return true
	}
	switch pqErr.Code.Class() {
	case "08", "40", "53", "57":
		return true
	}
	return false
}

func encodeAnswers(answers converter.Answers) ([]byte, error) {
	if answers == nil {
		answers = converter.Answers{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encoding answers: %w", err)
	}
	return data, nil
}

func decodeAnswers(data []byte) (converter.Answers, error) {
	var answers converter.Answers
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("decoding archived answers: %w", err)
	}
	return answers, nil
}
