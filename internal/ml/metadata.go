package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jroyseravila/heart/internal/common"
)

// ModelMetadata is the optional side-file written next to the artifact by
// the training pipeline. It is informational only.
type ModelMetadata struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	Features      []string  `json:"features"`
	Algorithm     string    `json:"algorithm,omitempty"`
	Accuracy      float64   `json:"accuracy"`
	TrainingRows  int       `json:"training_rows"`
	ValidationAcc float64   `json:"validation_accuracy"`
}

// ArtifactInfo describes the artifact file as found at load time.
type ArtifactInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	SHA256  string    `json:"sha256"`
}

func inspectArtifact(path string) (ArtifactInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArtifactInfo{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return ArtifactInfo{}, fmt.Errorf("%s is a directory", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ArtifactInfo{}, fmt.Errorf("read artifact: %w", err)
	}

	return ArtifactInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		SHA256:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func loadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, common.DefaultMetadataFile)

	if md, err := decodeMetadata(primary); err == nil {
		return md, nil
	}

	// Fallback: pick the newest metadata file by timestamp suffix
	pattern := filepath.Join(dir, "model_metadata_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no metadata files found in %s", dir)
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, err
	}
	return &md, nil
}
