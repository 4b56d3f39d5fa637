package engine

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

// LocalModel describes one model directory found on disk.
type LocalModel struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Loaded bool     `json:"loaded"`
	SizeMB *float64 `json:"size_mb"`
}

// ScanModels lists the subdirectories of modelDir as candidate models.
// A missing modelDir yields an empty list rather than an error; a
// directory whose size cannot be computed gets a nil SizeMB.
func ScanModels(modelDir string) ([]LocalModel, error) {
	models := []LocalModel{}
	if modelDir == "" {
		return models, nil
	}

	entries, err := os.ReadDir(modelDir)
	if err != nil {
		if os.IsNotExist(err) {
			return models, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(modelDir, entry.Name())
		m := LocalModel{
			Name: entry.Name(),
			Path: path,
		}
		if size, err := dirSizeMB(path); err == nil {
			m.SizeMB = &size
		}
		models = append(models, m)
	}
	return models, nil
}

func dirSizeMB(path string) (float64, error) {
	var bytes int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	mb := float64(bytes) / (1024 * 1024)
	return math.Round(mb*100) / 100, nil
}
