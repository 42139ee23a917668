package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/lib/pq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/converter"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/postgres"
)

func sampleAnswers() converter.Answers {
	return converter.Format([][]ranker.RelativeIndex{
		{{DocID: 2, Rank: 1}, {DocID: 0, Rank: 0.7}},
		{},
	})
}

func TestAnswersEncoding(t *testing.T) {
	data, err := encodeAnswers(sampleAnswers())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"request1": {"result": "true", "relevance": [{"docid": 2, "rank": 1}, {"docid": 0, "rank": 0.7}]},
		"request2": {"result": "false"}
	}`, string(data))

	got, err := decodeAnswers(data)
	require.NoError(t, err)
	assert.Equal(t, sampleAnswers(), got)

	empty, err := encodeAnswers(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}

func TestDecodeAnswers_Invalid(t *testing.T) {
	_, err := decodeAnswers([]byte("[1,2"))
	require.Error(t, err)
}

// TestStore_Postgres needs a scratch database: set TF_TEST_POSTGRES_DSN.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TF_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.Open(dsn, config.PostgresConfig{})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	store := NewStore(client)
	require.NoError(t, store.EnsureSchema(ctx))

	id, err := store.SaveRun(ctx, Run{
		Generation: 3,
		Documents:  4,
		Requests:   2,
		Answers:    sampleAnswers(),
	})
	require.NoError(t, err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, uint64(3), latest.Generation)
	assert.Equal(t, 2, latest.Requests)
	assert.Equal(t, sampleAnswers(), latest.Answers)
	assert.False(t, latest.CreatedAt.IsZero())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset by peer")))
	assert.True(t, retryable(fmt.Errorf("insert: %w", &pq.Error{Code: "40001"})))
	assert.True(t, retryable(&pq.Error{Code: "08006"}))
	assert.False(t, retryable(&pq.Error{Code: "23505"}))
	assert.False(t, retryable(&pq.Error{Code: "42P01"}))
}
