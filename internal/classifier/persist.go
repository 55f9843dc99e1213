package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Encode writes the model as JSON
func (m *Model) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("failed to encode classifier: %w", err)
	}
	return nil
}

// Save writes the model to path
func (m *Model) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create classifier file: %w", err)
	}
	if err := m.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Decode reads and validates a model written by Encode
func Decode(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode classifier: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier: %w", err)
	}
	return &m, nil
}

// Load reads a model from path
func Load(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}
