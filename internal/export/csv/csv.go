package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lumapix/lumapix/internal/export/types"
)

// Exporter handles exporting recommendations to a csv file.
type Exporter struct {
	outDir string
}

// New creates a new csv exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes recommendation records to a csv file, replacing any
// previous export.
func (e *Exporter) Export(records []*types.ExportRecord) error {
	path := filepath.Join(e.outDir, "recommendations.csv")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"user_id", "recommended_user_id", "score", "computed_at"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, record := range records {
		if err := writer.Write([]string{
			strconv.FormatUint(record.UserID, 10),
			strconv.FormatUint(record.RecommendedUserID, 10),
			strconv.FormatFloat(record.Score, 'f', 6, 64),
			record.ComputedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	return nil
}
