package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lumapix/lumapix/internal/export/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Exporter handles exporting recommendations to a SQLite database.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes recommendation records to a single SQLite database,
// replacing any previous export.
func (e *Exporter) Export(records []*types.ExportRecord) error {
	path := filepath.Join(e.outDir, "recommendations.db")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file: %w", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer conn.Close()

	err = sqlitex.Execute(conn, `
		CREATE TABLE recommendations (
			user_id INTEGER NOT NULL,
			recommended_user_id INTEGER NOT NULL,
			score REAL NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (user_id, recommended_user_id)
		)
	`, nil)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	const batchSize = 1000
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))

		err = sqlitex.Execute(conn, "BEGIN TRANSACTION", nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, record := range records[i:end] {
			err = sqlitex.Execute(conn,
				"INSERT INTO recommendations (user_id, recommended_user_id, score, computed_at) VALUES (?, ?, ?, ?)",
				&sqlitex.ExecOptions{
					Args: []any{
						int64(record.UserID),
						int64(record.RecommendedUserID),
						record.Score,
						record.ComputedAt.UTC().Format(time.RFC3339),
					},
				})
			if err != nil {
				return fmt.Errorf("failed to insert record: %w", err)
			}
		}

		err = sqlitex.Execute(conn, "COMMIT", nil)
		if err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	return nil
}
