package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/compose-network/contract-deployer/internal/infra/filesystem"
)

var _ filesystem.DocumentReader = (*Reader)(nil)

// Reader handles file reading operations
type Reader struct{}

// NewReader creates a new filesystem reader
func NewReader() *Reader {
	return &Reader{}
}

// ReadJSON reads and unmarshals JSON from a file. Numbers are decoded as
// json.Number so that large integers survive a round trip.
func (r *Reader) ReadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}
