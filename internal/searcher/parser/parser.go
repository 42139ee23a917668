package parser

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

// MatchMode decides which documents become candidates for a query.
type MatchMode int

const (
	// MatchAny selects every document containing at least one query term.
	MatchAny MatchMode = iota
	// MatchAll selects only documents containing every query term.
	MatchAll
)

func (m MatchMode) String() string {
	switch m {
	case MatchAll:
		return "all"
	default:
		return "any"
	}
}

// ParseMatchMode accepts "any"/"union" and "all"/"intersection". An empty
// string means MatchAny.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "union":
		return MatchAny, nil
	case "all", "intersection":
		return MatchAll, nil
	default:
		return MatchAny, fmt.Errorf("%w: unknown match mode %q", apperrors.ErrInvalidInput, s)
	}
}

type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Empty reports whether no usable term survived tokenization.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

func Parse(query string) *QueryPlan {
	return &QueryPlan{
		Terms:    tokenizer.QueryTerms(query),
		RawQuery: query,
	}
}
