package csv_test

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	exportCSV "github.com/lumapix/lumapix/internal/export/csv"
	"github.com/lumapix/lumapix/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifyCSVFile reads a CSV file and verifies its contents match the expected records.
func verifyCSVFile(t *testing.T, path string, expectedRecords []*types.ExportRecord) {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id", "recommended_user_id", "score", "computed_at"}, header)

	for _, expected := range expectedRecords {
		record, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatUint(expected.UserID, 10), record[0])
		assert.Equal(t, strconv.FormatUint(expected.RecommendedUserID, 10), record[1])
		assert.Equal(t, strconv.FormatFloat(expected.Score, 'f', 6, 64), record[2])
		assert.Equal(t, expected.ComputedAt.UTC().Format(time.RFC3339), record[3])
	}

	_, err = reader.Read()
	assert.Equal(t, io.EOF, err, "expected EOF after last record")
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		records []*types.ExportRecord
	}{
		{
			name: "basic export",
			records: []*types.ExportRecord{
				{UserID: 1, RecommendedUserID: 2, Score: 0.95, ComputedAt: now},
				{UserID: 1, RecommendedUserID: 3, Score: 0.75, ComputedAt: now},
				{UserID: 4, RecommendedUserID: 2, Score: 0.5, ComputedAt: now.Add(time.Hour)},
			},
		},
		{
			name:    "empty records",
			records: []*types.ExportRecord{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tempDir := t.TempDir()

			e := exportCSV.New(tempDir)
			require.NoError(t, e.Export(tt.records))

			verifyCSVFile(t, filepath.Join(tempDir, "recommendations.csv"), tt.records)
		})
	}
}

func TestExporter_ExistingFile(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "recommendations.csv")
	require.NoError(t, os.WriteFile(path, []byte("existing content"), 0o644))

	records := []*types.ExportRecord{
		{UserID: 1, RecommendedUserID: 2, Score: 0.9, ComputedAt: time.Now()},
	}

	e := exportCSV.New(tempDir)
	require.NoError(t, e.Export(records))

	verifyCSVFile(t, path, records)
}
