package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"farecraft/models"
	"farecraft/utils"
)

var _ ResultWriter = (*CSVWriter)(nil)

// CSVWriter handles writing priced flights to a CSV file
type CSVWriter struct {
	filePath string
	logger   *utils.Logger
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

// WriteResult writes one row per flight
func (w *CSVWriter) WriteResult(result *models.ScrapeResult) error {
	// Ensure output directory exists
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"origin", "destination", "date", "flights", "departure_time", "arrival_time",
		"is_nonstop", "total_duration", "points_required", "cash_price_usd", "taxes_fees_usd", "cpp",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	meta := result.SearchMetadata
	for _, f := range result.Flights {
		var numbers []string
		for _, s := range f.Segments {
			numbers = append(numbers, s.FlightNumber)
		}
		var dep, arr string
		if len(f.Segments) > 0 {
			dep = f.Segments[0].DepartureTime
			arr = f.Segments[len(f.Segments)-1].ArrivalTime
		}
		row := []string{
			meta.Origin,
			meta.Destination,
			meta.Date,
			strings.Join(numbers, "|"),
			dep,
			arr,
			strconv.FormatBool(f.IsNonstop),
			f.TotalDuration,
			strconv.Itoa(f.PointsRequired),
			strconv.FormatFloat(f.CashPriceUSD, 'f', 2, 64),
			strconv.FormatFloat(f.TaxesFeesUSD, 'f', 2, 64),
			strconv.FormatFloat(f.CPP, 'f', 2, 64),
		}
		if err := writer.Write(row); err != nil {
			w.logger.Error("Failed to write CSV row for '%s': %v", row[3], err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	w.logger.Info("Flights written to: %s (%d rows)", w.filePath, len(result.Flights))
	return nil
}
