package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"simple", "milk water", []string{"milk", "water"}},
		{"dedup keeps first occurrence", "water milk water", []string{"water", "milk"}},
		{"edge punctuation stripped", "milk, water!", []string{"milk", "water"}},
		{"punctuation dedups", "milk milk.", []string{"milk"}},
		{"inner punctuation kept", "don't e-mail", []string{"don't", "e-mail"}},
		{"case sensitive", "Milk milk", []string{"Milk", "milk"}},
		{"empty", "", []string{}},
		{"whitespace only", " \t\n ", []string{}},
		{"punctuation only", "... !! ?", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.query, plan.RawQuery)
			assert.Equal(t, tt.want, plan.Terms)
			assert.Equal(t, len(tt.want) == 0, plan.Empty())
		})
	}
}

func TestParseMatchMode(t *testing.T) {
	for in, want := range map[string]MatchMode{
		"":               MatchAny,
		"any":            MatchAny,
		"Union":          MatchAny,
		"all":            MatchAll,
		" intersection ": MatchAll,
	} {
		got, err := ParseMatchMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMatchMode("some")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMatchMode_String(t *testing.T) {
	assert.Equal(t, "any", MatchAny.String())
	assert.Equal(t, "all", MatchAll.String())
}
