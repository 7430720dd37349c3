package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/lumapix/lumapix/internal/database"
	"github.com/lumapix/lumapix/internal/export/csv"
	"github.com/lumapix/lumapix/internal/export/sqlite"
	"github.com/lumapix/lumapix/internal/export/types"
	"go.uber.org/zap"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format represents a supported export format.
type Format string

const (
	FormatSQLite Format = "sqlite"
	FormatCSV    Format = "csv"
)

// EngineVersion represents the version of the export engine.
// This should be updated when making breaking changes to the export format.
const EngineVersion = "1.0.0"

// Config holds the configuration for exports.
type Config struct {
	ExportVersion string `json:"exportVersion"`
	Description   string `json:"description"`
}

// Exporter dumps all persisted recommendations to offline files for
// analysis and offline evaluation.
type Exporter struct {
	db      database.Client
	outDir  string
	config  *Config
	formats []Format
	logger  *zap.Logger
}

// New creates a new exporter instance.
func New(db database.Client, outDir string, config *Config, logger *zap.Logger) *Exporter {
	return &Exporter{
		db:     db,
		outDir: outDir,
		config: config,
		formats: []Format{
			FormatSQLite,
			FormatCSV,
		},
		logger: logger.Named("export"),
	}
}

// ExportAll exports all persisted recommendations in every supported format
// along with a config manifest.
func (e *Exporter) ExportAll(ctx context.Context) error {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	rows, err := e.db.Model().Recommendation().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to get recommendations: %w", err)
	}

	records := make([]*types.ExportRecord, len(rows))
	for i, row := range rows {
		records[i] = &types.ExportRecord{
			UserID:            row.UserID,
			RecommendedUserID: row.RecommendedUserID,
			Score:             row.Score,
			ComputedAt:        row.ComputedAt,
		}
	}

	e.logger.Info("Exporting recommendations",
		zap.Int("records", len(records)),
		zap.String("outDir", e.outDir))

	if err := e.writeManifest(); err != nil {
		return err
	}

	for _, format := range e.formats {
		if err := e.export(format, records); err != nil {
			return fmt.Errorf("failed to export %s format: %w", format, err)
		}
	}

	e.logger.Info("Export completed", zap.Int("formats", len(e.formats)))

	return nil
}

// writeManifest saves the export configuration next to the data files.
func (e *Exporter) writeManifest() error {
	manifest := struct {
		*Config

		EngineVersion string `json:"engineVersion"`
	}{
		Config:        e.config,
		EngineVersion: EngineVersion,
	}

	data, err := sonic.MarshalIndent(manifest, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal export config: %w", err)
	}

	path := filepath.Join(e.outDir, "export_config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write export config: %w", err)
	}

	return nil
}

// export handles exporting data in the specified format.
func (e *Exporter) export(format Format, records []*types.ExportRecord) error {
	var exporter interface {
		Export(records []*types.ExportRecord) error
	}

	switch format {
	case FormatSQLite:
		exporter = sqlite.New(e.outDir)
	case FormatCSV:
		exporter = csv.New(e.outDir)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return exporter.Export(records)
}
