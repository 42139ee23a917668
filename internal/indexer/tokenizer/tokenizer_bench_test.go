package tokenizer

import (
	"strings"
	"testing"
)

var benchTexts = map[string]string{
	"short":  "milk milk milk milk water water water",
	"medium": strings.Repeat("americano cappuccino espresso latte milk water ", 40),
	"long":   strings.Repeat("the quick brown fox jumps over the lazy dog\n", 2000),
}

func BenchmarkFields(b *testing.B) {
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Fields(text)
			}
		})
	}
}

func BenchmarkScan(b *testing.B) {
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				n := 0
				_ = Scan(strings.NewReader(text), func(string) { n++ })
			}
		})
	}
}

func BenchmarkQueryTerms(b *testing.B) {
	queries := map[string]string{
		"simple":     "milk water",
		"punctuated": "milk, water! (milk) \"latte\"",
		"long":       strings.Repeat("milk water latte espresso ", 25),
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = QueryTerms(q)
			}
		})
	}
}
