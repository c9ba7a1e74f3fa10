package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// CSVSource reads one preprocessed file per participant. The file named by
// Pattern formatted with the participant index must have a header row; the
// Target column is the label and every other column is a feature.
type CSVSource struct {
	Dir          string
	Pattern      string
	Target       string
	TestFraction float64
	Seed         uint64
}

func (s *CSVSource) Path(index int) string {
	return filepath.Join(s.Dir, fmt.Sprintf(s.Pattern, index))
}

func (s *CSVSource) Load(ctx context.Context, index int) (Split, error) {
	if err := ctx.Err(); err != nil {
		return Split{}, err
	}

	path := s.Path(index)
	f, err := os.Open(path)
	if err != nil {
		return Split{}, fmt.Errorf("open participant %d data: %w", index, err)
	}
	defer f.Close()

	x, y, features, err := ReadCSV(f, s.Target)
	if err != nil {
		return Split{}, fmt.Errorf("%s: %w", path, err)
	}

	return splitRows(x, y, features, s.TestFraction, s.Seed)
}

// ReadCSV parses a headed numeric CSV. Blank lines are skipped; any other
// unparsable cell is an error.
func ReadCSV(r io.Reader, target string) ([][]float64, []float64, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil, fmt.Errorf("%w: missing header", ErrInvalidData)
		}

		return nil, nil, nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ti := slices.Index(header, target)
	if ti < 0 {
		return nil, nil, nil, fmt.Errorf("%w: target column %q not found", ErrInvalidData, target)
	}
	features := slices.Delete(slices.Clone(header), ti, ti+1)
	if len(features) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no feature columns", ErrInvalidData)
	}

	var (
		x [][]float64
		y []float64
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}

		line, _ := cr.FieldPos(0)
		row := make([]float64, 0, len(features))
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, nil, fmt.Errorf("%w: line %d column %q: %q is not a finite number", ErrInvalidData, line, header[i], cell)
			}
			if i == ti {
				y = append(y, v)
				continue
			}
			row = append(row, v)
		}
		x = append(x, row)
	}

	return x, y, features, nil
}
