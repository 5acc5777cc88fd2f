package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewRejectsMisalignedRows(t *testing.T) {
	embeddings := mat.NewDense(3, 2, nil)
	_, err := New([]string{"a", "b"}, embeddings)

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 2, mismatch.Sentences)
	require.Equal(t, 3, mismatch.Embeddings)
}

func TestLoadSentencesSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentences.csv")
	require.NoError(t, os.WriteFile(path, []byte("sentence\nfirst one\nsecond one\n"), 0o644))

	sentences, err := LoadSentences(path)
	require.NoError(t, err)
	require.Equal(t, []string{"first one", "second one"}, sentences)
}

func TestLoadSentencesWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentences.csv")
	require.NoError(t, os.WriteFile(path, []byte("first one\nsecond one\n"), 0o644))

	sentences, err := LoadSentences(path)
	require.NoError(t, err)
	require.Equal(t, []string{"first one", "second one"}, sentences)
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")
	want := mat.NewDense(2, 3, []float64{1, 2, 3, 4.5, -6, 0})

	require.NoError(t, SaveEmbeddings(path, want))

	got, err := LoadEmbeddings(path)
	require.NoError(t, err)
	require.True(t, mat.Equal(want, got))
}

func TestLoadEmbeddingsRejectsVector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.npy")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, []float64{1, 2, 3}))
	require.NoError(t, f.Close())

	_, err = LoadEmbeddings(path)
	require.ErrorContains(t, err, "2-D")
}

func TestLoadAlignsFiles(t *testing.T) {
	dir := t.TempDir()
	sentencesPath := filepath.Join(dir, "sentences.csv")
	embeddingsPath := filepath.Join(dir, "embeddings.npy")

	require.NoError(t, os.WriteFile(sentencesPath, []byte("sentence\nalpha\nbeta\n"), 0o644))
	require.NoError(t, SaveEmbeddings(embeddingsPath, mat.NewDense(2, 4, nil)))

	ds, err := Load(sentencesPath, embeddingsPath)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	require.Equal(t, 4, ds.Dim())

	// One extra sentence row must fail alignment.
	require.NoError(t, os.WriteFile(sentencesPath, []byte("sentence\nalpha\nbeta\ngamma\n"), 0o644))
	_, err = Load(sentencesPath, embeddingsPath)
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
}
