// Package dataset loads the aligned (sentence, embedding) corpus consumed
// by the trainer and the interpretation pipeline. Sentences come from a
// single-column CSV, embeddings from a 2-D numpy .npy matrix; rows are
// aligned 1:1 by position.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Dataset holds an aligned corpus. Read-only after Load.
type Dataset struct {
	Sentences  []string
	Embeddings *mat.Dense
}

// MismatchError reports row-misaligned inputs. This is fatal before any
// training or interpretation starts.
type MismatchError struct {
	Sentences  int
	Embeddings int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("dataset mismatch: %d sentences but %d embedding rows", e.Sentences, e.Embeddings)
}

// New builds a dataset from in-memory parts, enforcing row alignment.
func New(sentences []string, embeddings *mat.Dense) (*Dataset, error) {
	rows, _ := embeddings.Dims()
	if len(sentences) != rows {
		return nil, &MismatchError{Sentences: len(sentences), Embeddings: rows}
	}
	return &Dataset{Sentences: sentences, Embeddings: embeddings}, nil
}

// Load reads and aligns the sentence and embedding files.
func Load(sentencesPath, embeddingsPath string) (*Dataset, error) {
	sentences, err := LoadSentences(sentencesPath)
	if err != nil {
		return nil, err
	}
	embeddings, err := LoadEmbeddings(embeddingsPath)
	if err != nil {
		return nil, err
	}
	return New(sentences, embeddings)
}

// Len returns the number of aligned rows.
func (d *Dataset) Len() int {
	return len(d.Sentences)
}

// Dim returns the embedding dimensionality.
func (d *Dataset) Dim() int {
	_, cols := d.Embeddings.Dims()
	return cols
}

// LoadSentences reads a single-column CSV of sentences. A leading
// "sentence" header row is skipped if present.
func LoadSentences(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sentences file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 1

	var sentences []string
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading sentences file %s: %w", path, err)
		}
		if first {
			first = false
			if record[0] == "sentence" {
				continue
			}
		}
		sentences = append(sentences, record[0])
	}
	return sentences, nil
}
