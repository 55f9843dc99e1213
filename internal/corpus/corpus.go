// Package corpus loads labeled training text from a two-column CSV file.
package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zombar/textdetector/internal/models"
)

// Column headers of the training CSV
const (
	HumanColumn = "Human_Content"
	AIColumn    = "AI_Content"
)

var (
	// ErrMissingColumns means the CSV header lacks one of the expected columns
	ErrMissingColumns = errors.New("CSV is missing expected columns")
	// ErrNoRows means nothing usable was left after dropping missing cells
	ErrNoRows = errors.New("no rows left after cleaning")
)

// Stats describes what loading kept and dropped
type Stats struct {
	Rows    int // data rows in the file
	Columns []string
	Human   int
	AI      int
	Dropped int // missing cells
}

// Read parses a CSV and pairs its two text columns into one labeled sequence:
// every human text in file order, then every AI text in file order. Missing
// cells are dropped; kept text is trimmed of surrounding whitespace.
func Read(r io.Reader) ([]models.Sample, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, Stats{}, fmt.Errorf("empty CSV: %w", ErrMissingColumns)
	}
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	stats := Stats{Columns: make([]string, len(header))}
	humanIdx, aiIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		stats.Columns[i] = name
		switch name {
		case HumanColumn:
			humanIdx = i
		case AIColumn:
			aiIdx = i
		}
	}
	if humanIdx < 0 || aiIdx < 0 {
		return nil, stats, fmt.Errorf("%w: found %v", ErrMissingColumns, stats.Columns)
	}

	var human, ai []models.Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read CSV row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		if text, ok := cell(record, humanIdx); ok {
			human = append(human, models.Sample{Text: text, Label: models.LabelHuman})
		} else {
			stats.Dropped++
		}
		if text, ok := cell(record, aiIdx); ok {
			ai = append(ai, models.Sample{Text: text, Label: models.LabelAI})
		} else {
			stats.Dropped++
		}
	}

	stats.Human = len(human)
	stats.AI = len(ai)
	samples := append(human, ai...)
	if len(samples) == 0 {
		return nil, stats, ErrNoRows
	}
	return samples, stats, nil
}

// cell returns the trimmed value at idx; an absent or empty cell is missing
func cell(record []string, idx int) (string, bool) {
	if idx >= len(record) || record[idx] == "" {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

// Load reads a corpus from a CSV file
func Load(path string) ([]models.Sample, Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer file.Close()
	return Read(file)
}
