package ml

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed pyhelper/infer.py
var inferScript []byte

const inferScriptName = "heart_infer.py"

// pythonClassifier serves a pickled classifier through a Python helper run
// as a subprocess. The artifact is immutable, so unpickling it on every call
// yields the same model the startup probe validated.
type pythonClassifier struct {
	pythonPath string
	scriptPath string
	scriptDir  string
	modelPath  string
	desc       ModelDescription
}

type pythonRequest struct {
	Features [][]float64 `json:"features"`
}

type pythonResponse struct {
	Labels          []int       `json:"labels"`
	Probabilities   [][]float64 `json:"probabilities"`
	Type            string      `json:"type"`
	NFeatures       int         `json:"n_features"`
	Classes         []int       `json:"classes"`
	HasPredict      bool        `json:"has_predict"`
	HasPredictProba bool        `json:"has_predict_proba"`
	Error           string      `json:"error,omitempty"`
	Kind            string      `json:"kind,omitempty"`
}

func openPython(cfg StoreConfig) (Classifier, error) {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		var err error
		pythonPath, err = findPython()
		if err != nil {
			return nil, err
		}
	}

	scriptDir, err := os.MkdirTemp("", "heart-infer-")
	if err != nil {
		return nil, fmt.Errorf("create helper dir: %w", err)
	}
	scriptPath := filepath.Join(scriptDir, inferScriptName)
	if err := os.WriteFile(scriptPath, inferScript, 0o700); err != nil {
		os.RemoveAll(scriptDir)
		return nil, fmt.Errorf("write inference helper: %w", err)
	}

	c := &pythonClassifier{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		scriptDir:  scriptDir,
		modelPath:  cfg.ModelPath,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
	defer cancel()

	resp, err := c.run(ctx, "describe", nil)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("model probe failed: %w", err)
	}
	if !resp.HasPredict || !resp.HasPredictProba {
		c.Close()
		return nil, fmt.Errorf("%s does not support predict and predict_proba", resp.Type)
	}

	c.desc = ModelDescription{Type: resp.Type, NFeatures: resp.NFeatures, Classes: resp.Classes}
	log.Info().
		Str("python_path", pythonPath).
		Str("model_type", resp.Type).
		Int("n_features", resp.NFeatures).
		Ints("classes", resp.Classes).
		Msg("pickled model probed")

	return c, nil
}

func (c *pythonClassifier) Predict(ctx context.Context, batch [][]float64) ([]int, error) {
	labels, _, err := c.PredictWithProba(ctx, batch)
	return labels, err
}

func (c *pythonClassifier) PredictProba(ctx context.Context, batch [][]float64) ([][]float64, error) {
	_, probs, err := c.PredictWithProba(ctx, batch)
	return probs, err
}

func (c *pythonClassifier) PredictWithProba(ctx context.Context, batch [][]float64) ([]int, [][]float64, error) {
	resp, err := c.run(ctx, "infer", &pythonRequest{Features: batch})
	if err != nil {
		return nil, nil, err
	}
	return resp.Labels, resp.Probabilities, nil
}

func (c *pythonClassifier) Describe() ModelDescription { return c.desc }

func (c *pythonClassifier) Close() error {
	if c.scriptDir == "" {
		return nil
	}
	return os.RemoveAll(c.scriptDir)
}

func (c *pythonClassifier) run(ctx context.Context, mode string, req *pythonRequest) (*pythonResponse, error) {
	cmd := exec.CommandContext(ctx, c.pythonPath, c.scriptPath, mode, c.modelPath)
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		cmd.Stdin = bytes.NewReader(payload)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("python %s: %w", mode, ctx.Err())
	}

	var resp pythonResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		if runErr != nil {
			log.Error().
				Err(runErr).
				Str("python_path", c.pythonPath).
				Str("model_path", c.modelPath).
				Str("stderr", stderr.String()).
				Msg("python helper execution failed")
			return nil, fmt.Errorf("python %s failed: %w, stderr: %s", mode, runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: unparsable helper output: %v", ErrInvalidOutput, err)
	}

	if resp.Error != "" {
		if resp.Kind == "shape" {
			return nil, fmt.Errorf("%w: %s", ErrShapeMismatch, resp.Error)
		}
		return nil, fmt.Errorf("python %s error (%s): %s", mode, resp.Kind, resp.Error)
	}
	if runErr != nil {
		return nil, fmt.Errorf("python %s failed: %w", mode, runErr)
	}
	return &resp, nil
}

// findPython looks for a Python 3 interpreter that can unpickle
// scikit-learn models, preferring virtual environments.
func findPython() (string, error) {
	var candidates []string

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		)
	}

	if wd, err := os.Getwd(); err == nil {
		for _, venv := range []string{"venv", ".venv"} {
			candidates = append(candidates,
				filepath.Join(wd, venv, "bin", "python3"),
				filepath.Join(wd, venv, "bin", "python"),
				filepath.Join(wd, venv, "Scripts", "python.exe"),
			)
		}
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, path)
		}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		out, err := exec.Command(candidate, "-c", "import sys, sklearn, numpy; print('Python', sys.version)").Output()
		if err == nil && strings.Contains(string(out), "Python 3") {
			log.Info().Str("python_path", candidate).Msg("using Python interpreter")
			return candidate, nil
		}
	}

	return "", errors.New("no Python 3 interpreter with scikit-learn and numpy found; set PYTHON_PATH")
}
