package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"farecraft/models"
	"farecraft/utils"
)

var _ ResultWriter = (*JSONWriter)(nil)

// JSONWriter writes the result artifact as indented JSON
type JSONWriter struct {
	filePath string
	logger   *utils.Logger
}

func NewJSONWriter(filePath string, logger *utils.Logger) *JSONWriter {
	return &JSONWriter{filePath: filePath, logger: logger}
}

func (w *JSONWriter) WriteResult(result *models.ScrapeResult) error {
	if err := os.MkdirAll(filepath.Dir(w.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(w.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	w.logger.Info("Result written to: %s (%d flights)", w.filePath, result.TotalResults)
	return nil
}
