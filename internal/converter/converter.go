// Package converter reads search requests from and writes ranked answers to
// the engine's JSON files.
//
// requests.json:
//
//	{"requests": ["milk water", "sugar"]}
//
// answers.json:
//
//	{"answers": {
//	    "request1": {"result": "true", "relevance": [{"docid": 2, "rank": 1}]},
//	    "request2": {"result": "false"}
//	}}
//
// Answers are keyed objects rather than bare [[docid, rank], ...] arrays so
// a request with no hits is still reported.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

const (
	requestPrefix = "request"
	lockRetry     = 10 * time.Millisecond
)

type Relevance struct {
	DocID index.DocID `json:"docid"`
	Rank  float64     `json:"rank"`
}

// Answer is the outcome of one request. Result is "true" when at least one
// document matched.
type Answer struct {
	Request   string      `json:"-"`
	Result    string      `json:"result"`
	Relevance []Relevance `json:"relevance,omitempty"`
}

func (a Answer) Found() bool {
	return a.Result == "true"
}

// Answers keeps requests in input order. It encodes as a JSON object keyed
// request1, request2, ... in that order.
type Answers []Answer

type requestsFile struct {
	Requests []string `json:"requests"`
}

type answersFile struct {
	Answers Answers `json:"answers"`
}

// RequestKey returns the answers key for the i-th (0-based) request.
func RequestKey(i int) string {
	return requestPrefix + strconv.Itoa(i+1)
}

// ReadRequests loads the request list from path. A missing file or a file
// without a "requests" section yields an empty list.
func ReadRequests(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading requests %s: %w", path, err)
	}
	var file requestsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing requests %s: %v", apperrors.ErrInvalidInput, path, err)
	}
	if file.Requests == nil {
		return []string{}, nil
	}
	return file.Requests, nil
}

// Format converts ranked results, one list per request, into Answers. Ranks
// are rounded to three decimals.
func Format(results [][]ranker.RelativeIndex) Answers {
	answers := make(Answers, len(results))
	for i, ranked := range results {
		answer := Answer{Request: RequestKey(i), Result: "false"}
		if len(ranked) > 0 {
			answer.Result = "true"
			answer.Relevance = make([]Relevance, len(ranked))
			for j, r := range ranked {
				answer.Relevance[j] = Relevance{
					DocID: r.DocID,
					Rank:  math.Round(r.Rank*1000) / 1000,
				}
			}
		}
		answers[i] = answer
	}
	return answers
}

// Encode returns the indented answers document.
func Encode(answers Answers) ([]byte, error) {
	if answers == nil {
		answers = Answers{}
	}
	data, err := json.MarshalIndent(answersFile{Answers: answers}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding answers: %w", err)
	}
	return data, nil
}

// WriteAnswers replaces the file at path with the answers document. Writers
// are serialized across processes through an exclusive lock on path.lock.
func WriteAnswers(ctx context.Context, path string, answers Answers) error {
	data, err := Encode(answers)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating answers directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("locking %s: %w", path, apperrors.ErrTimeout)
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing answers %s: %w", path, err)
	}
	return nil
}

// ReadAnswers loads an answers document written by WriteAnswers.
func ReadAnswers(path string) (Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers %s: %w", path, err)
	}
	var file answersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing answers %s: %v", apperrors.ErrInvalidInput, path, err)
	}
	if file.Answers == nil {
		return Answers{}, nil
	}
	return file.Answers, nil
}

func (a Answers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, answer := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := answer.Request
		if key == "" {
			key = RequestKey(i)
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(answer)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON orders answers by the number in their request key; keys
// without a number sort last, lexically.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var byKey map[string]Answer
	if err := json.Unmarshal(data, &byKey); err != nil {
		return err
	}
	out := make(Answers, 0, len(byKey))
	for key, answer := range byKey {
		answer.Request = key
		out = append(out, answer)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, okI := requestNumber(out[i].Request)
		nj, okJ := requestNumber(out[j].Request)
		switch {
		case okI && okJ && ni != nj:
			return ni < nj
		case okI != okJ:
			return okI
		default:
			return out[i].Request < out[j].Request
		}
	})
	*a = out
	return nil
}

func requestNumber(key string) (int, bool) {
	if !strings.HasPrefix(key, requestPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, requestPrefix))
	return n, err == nil
}
