package dataset

import (
	"fmt"
	"os"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// LoadEmbeddings reads a 2-D float32 or float64 .npy matrix into a dense
// float64 matrix with one embedding per row.
func LoadEmbeddings(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening embeddings file: %w", err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading npy header of %s: %w", path, err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("embeddings file %s: want 2-D matrix, got shape %v", path, shape)
	}
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("embeddings file %s: fortran-ordered arrays are not supported", path)
	}

	rows, cols := shape[0], shape[1]
	data := make([]float64, rows*cols)

	switch {
	case strings.Contains(r.Header.Descr.Type, "f8"):
		if err := r.Read(&data); err != nil {
			return nil, fmt.Errorf("reading embeddings from %s: %w", path, err)
		}
	case strings.Contains(r.Header.Descr.Type, "f4"):
		raw := make([]float32, rows*cols)
		if err := r.Read(&raw); err != nil {
			return nil, fmt.Errorf("reading embeddings from %s: %w", path, err)
		}
		for i, v := range raw {
			data[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("embeddings file %s: unsupported dtype %q", path, r.Header.Descr.Type)
	}

	return mat.NewDense(rows, cols, data), nil
}

// SaveEmbeddings writes a dense matrix as a float64 .npy file.
func SaveEmbeddings(path string, m *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating embeddings file: %w", err)
	}
	defer f.Close()

	if err := npyio.Write(f, m); err != nil {
		return fmt.Errorf("writing embeddings to %s: %w", path, err)
	}
	return nil
}
