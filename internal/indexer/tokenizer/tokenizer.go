// Package tokenizer splits documents and queries into terms.
//
// Documents are split on whitespace only: a term is a maximal run of
// non-whitespace characters, kept exactly as written. Queries are split the
// same way, then leading and trailing punctuation and symbols are stripped
// from each term, empty terms are dropped and duplicates are removed.
// Matching is case-sensitive on both sides, so a document term such as
// "milk." is indexed but no query can reach it.
package tokenizer

import (
	"bufio"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fields returns the whitespace-delimited terms of text in order.
func Fields(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// Scan streams the whitespace-delimited terms of r to fn in order. Terms
// have no length limit. It stops at the first read error and returns it;
// terms completed before the error have already been delivered.
func Scan(r io.Reader, fn func(term string)) error {
	br := bufio.NewReader(r)
	var term strings.Builder
	for {
		c, size, err := br.ReadRune()
		if err == io.EOF {
			if term.Len() > 0 {
				fn(term.String())
			}
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case c == utf8.RuneError && size == 1:
			// Invalid UTF-8 is kept byte for byte, as Fields does.
			_ = br.UnreadRune()
			b, _ := br.ReadByte()
			term.WriteByte(b)
		case unicode.IsSpace(c):
			if term.Len() > 0 {
				fn(term.String())
				term.Reset()
			}
		default:
			term.WriteRune(c)
		}
	}
}

// QueryTerms returns the distinct terms of a query in first-seen order.
func QueryTerms(query string) []string {
	words := Fields(query)
	terms := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		term := TrimPunct(word)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// TrimPunct removes leading and trailing Unicode punctuation and symbols
// from word. The ASCII set matches C ispunct.
func TrimPunct(word string) string {
	return strings.TrimFunc(word, isPunct)
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
