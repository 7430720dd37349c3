package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshot is the on-disk form of the index: the vector store, the ordered
// photo id list, the id-to-position map, and the embedding dimension.
type snapshot struct {
	Vectors   [][]float64
	IDs       []uint64
	Positions map[uint64]int
	Dimension int
}

// save writes the current index state to the snapshot path. The snapshot is
// written to a temp file first and renamed so readers never observe a
// partial file.
func (ix *Index) save() error {
	tmpPath := ix.path + ".tmp"

	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	snap := snapshot{
		Vectors:   ix.vectors,
		IDs:       ix.ids,
		Positions: ix.positions,
		Dimension: ix.dim,
	}

	if err := gob.NewEncoder(file).Encode(&snap); err != nil {
		file.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, ix.path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// load restores index state from the snapshot path. A missing file is not an
// error; the index simply starts empty. Any deserialization failure is
// returned so the caller can log it and treat the index as absent.
func (ix *Index) load() error {
	if ix.path == "" {
		return nil
	}

	file, err := os.Open(ix.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if len(snap.IDs) != len(snap.Vectors) || len(snap.IDs) != len(snap.Positions) {
		return fmt.Errorf("snapshot is inconsistent: %d ids, %d vectors, %d positions",
			len(snap.IDs), len(snap.Vectors), len(snap.Positions))
	}

	ix.vectors = snap.Vectors
	ix.ids = snap.IDs
	ix.positions = snap.Positions

	if snap.Dimension > 0 {
		ix.dim = snap.Dimension
	}

	if snap.Positions == nil {
		ix.positions = make(map[uint64]int)
	}

	return nil
}
