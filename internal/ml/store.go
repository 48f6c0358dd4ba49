package ml

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/jroyseravila/heart/internal/common"

	"github.com/rs/zerolog/log"
)

// StoreConfig tells the model store where the artifact lives and how to open
// it.
type StoreConfig struct {
	ModelPath      string
	Backend        string // auto, python, native or onnx
	PythonPath     string
	OnnxRuntimeLib string
	ProbeTimeout   time.Duration
}

// ModelDescription is what a backend can tell about the loaded model.
type ModelDescription struct {
	Type      string `json:"type"`
	NFeatures int    `json:"n_features"`
	Classes   []int  `json:"classes"`
}

type describer interface {
	Describe() ModelDescription
}

type opener func(cfg StoreConfig) (Classifier, error)

var openers = map[string]opener{
	common.BackendPython: openPython,
	common.BackendNative: openNative,
	common.BackendONNX:   openONNX,
}

// ModelStore owns the single classifier loaded at startup. After
// construction it never changes, so it is safe to share between requests.
type ModelStore struct {
	path     string
	backend  string
	handle   Classifier
	loadErr  error
	artifact ArtifactInfo
	metadata *ModelMetadata
	loadedAt time.Time
}

// NewModelStore loads the artifact once. A missing or unreadable artifact is
// not an error: the returned store is in the unavailable state and every
// prediction is refused. Only an unknown backend name fails construction.
func NewModelStore(cfg StoreConfig, metrics MetricsInterface) (*ModelStore, error) {
	backend, err := resolveBackend(cfg.Backend, cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = common.DefaultInferenceTimeout
	}

	s := &ModelStore{
		path:     cfg.ModelPath,
		backend:  backend,
		loadedAt: time.Now(),
	}

	artifact, err := inspectArtifact(cfg.ModelPath)
	if err != nil {
		s.loadErr = err
		log.Warn().Err(err).Str("model_path", cfg.ModelPath).Msg("model artifact not readable, predictions disabled")
		s.reportMetrics(metrics)
		return s, nil
	}
	s.artifact = artifact

	handle, err := openers[backend](cfg)
	if err != nil {
		s.loadErr = err
		log.Warn().
			Err(err).
			Str("model_path", cfg.ModelPath).
			Str("backend", backend).
			Msg("model load failed, predictions disabled")
		s.reportMetrics(metrics)
		return s, nil
	}
	s.handle = handle

	if md, err := loadModelMetadata(cfg.ModelPath); err == nil {
		s.metadata = md
	} else {
		log.Debug().Err(err).Msg("no model metadata side-file")
	}

	log.Info().
		Str("model_path", cfg.ModelPath).
		Str("backend", backend).
		Str("sha256", artifact.SHA256).
		Int64("size", artifact.Size).
		Msg("model loaded")

	s.reportMetrics(metrics)
	return s, nil
}

// StoreFromClassifier wraps an already constructed classifier in a ready
// store. Used by tools that build models in memory.
func StoreFromClassifier(path string, c Classifier) *ModelStore {
	return &ModelStore{path: path, backend: "memory", handle: c, loadedAt: time.Now()}
}

// UnavailableStore returns a store in the unavailable state.
func UnavailableStore(path string, cause error) *ModelStore {
	if cause == nil {
		cause = ErrModelUnavailable
	}
	return &ModelStore{path: path, loadErr: cause, loadedAt: time.Now()}
}

func (s *ModelStore) reportMetrics(metrics MetricsInterface) {
	if metrics == nil {
		return
	}
	metrics.MLModelLoadedSet(s.handle != nil)
	if s.handle != nil && !s.artifact.ModTime.IsZero() {
		metrics.MLModelAgeSet(time.Since(s.artifact.ModTime).Seconds())
	}
}

// Handle returns the loaded classifier. The boolean is false when the store
// is unavailable; callers must not attempt inference in that case.
func (s *ModelStore) Handle() (Classifier, bool) {
	if s == nil || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// Ready reports whether a classifier is loaded.
func (s *ModelStore) Ready() bool {
	_, ok := s.Handle()
	return ok
}

// Path returns the configured artifact path.
func (s *ModelStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// LoadError returns why the store is unavailable, or nil when ready.
func (s *ModelStore) LoadError() error {
	if s == nil {
		return ErrModelUnavailable
	}
	return s.loadErr
}

// NotFound reports whether the load failed because the artifact is missing.
func (s *ModelStore) NotFound() bool {
	return errors.Is(s.LoadError(), fs.ErrNotExist)
}

// StoreStatus is a snapshot of the store for status pages and the API.
type StoreStatus struct {
	Ready       bool              `json:"ready"`
	Path        string            `json:"path"`
	Backend     string            `json:"backend"`
	Error       string            `json:"error,omitempty"`
	LoadedAt    time.Time         `json:"loaded_at"`
	Artifact    *ArtifactInfo     `json:"artifact,omitempty"`
	Metadata    *ModelMetadata    `json:"metadata,omitempty"`
	Description *ModelDescription `json:"description,omitempty"`
}

// Status returns the store snapshot.
func (s *ModelStore) Status() StoreStatus {
	if s == nil {
		return StoreStatus{Error: ErrModelUnavailable.Error()}
	}
	st := StoreStatus{
		Ready:    s.handle != nil,
		Path:     s.path,
		Backend:  s.backend,
		LoadedAt: s.loadedAt,
		Metadata: s.metadata,
	}
	if s.loadErr != nil {
		st.Error = s.loadErr.Error()
	}
	if s.artifact.Path != "" {
		a := s.artifact
		st.Artifact = &a
	}
	if d, ok := s.handle.(describer); ok {
		desc := d.Describe()
		st.Description = &desc
	}
	return st
}

// Close releases backend resources.
func (s *ModelStore) Close() error {
	if s == nil || s.handle == nil {
		return nil
	}
	if c, ok := s.handle.(closer); ok {
		return c.Close()
	}
	return nil
}

// resolveBackend maps "auto" to a backend by file extension.
func resolveBackend(backend, path string) (string, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = common.BackendAuto
	}
	if backend != common.BackendAuto {
		if _, ok := openers[backend]; !ok {
			return "", fmt.Errorf("unknown model backend %q", backend)
		}
		return backend, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pkl", ".pickle", ".joblib", ".sav":
		return common.BackendPython, nil
	case ".json":
		return common.BackendNative, nil
	case ".onnx":
		return common.BackendONNX, nil
	}
	return "", fmt.Errorf("cannot infer model backend from %q, set %s", path, common.EnvModelBackend)
}
