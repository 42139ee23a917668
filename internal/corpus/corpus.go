// Package corpus supplies the ordered document list the index is built from.
// A Document is a readable handle rather than loaded content: the index
// builder opens each one inside its own worker, so file I/O runs in parallel
// and content lives only for the duration of one tokenization pass.
package corpus

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Document is one entry of the corpus. Its position in the list handed to
// the builder becomes its document id.
type Document interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileDocument struct {
	path string
}

// File returns a Document backed by the file at path. The file is not
// touched until Open is called.
func File(path string) Document {
	return fileDocument{path: path}
}

func (d fileDocument) Name() string { return d.path }

func (d fileDocument) Open() (io.ReadCloser, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("opening document %s: %w", d.path, err)
	}
	return f, nil
}

type textDocument struct {
	name    string
	content string
}

// Text returns an in-memory Document.
func Text(name, content string) Document {
	return textDocument{name: name, content: content}
}

func (d textDocument) Name() string { return d.name }

func (d textDocument) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(d.content)), nil
}

// FromPaths maps file paths to Documents, preserving order.
func FromPaths(paths []string) []Document {
	docs := make([]Document, len(paths))
	for i, p := range paths {
		docs[i] = File(p)
	}
	return docs
}

// FromStrings maps raw texts to in-memory Documents named doc-<i>.
func FromStrings(texts []string) []Document {
	docs := make([]Document, len(texts))
	for i, text := range texts {
		docs[i] = Text(fmt.Sprintf("doc-%d", i), text)
	}
	return docs
}
