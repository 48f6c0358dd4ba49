package ml

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const describeOK = `{"type":"RandomForestClassifier","n_features":5,"classes":[0,1],"has_predict":true,"has_predict_proba":true}`

// fakePython writes a shell script standing in for the interpreter. It is
// invoked as: <script> <helper> <mode> <model>.
func fakePython(t *testing.T, describe, infer string, inferExit int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter needs a POSIX shell")
	}
	script := "#!/bin/sh\n" +
		"case \"$2\" in\n" +
		"describe) echo '" + describe + "' ;;\n" +
		"infer) cat > /dev/null; echo '" + infer + "'; exit " + strconv.Itoa(inferExit) + " ;;\n" +
		"esac\n"
	path := filepath.Join(t.TempDir(), "python3")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func pickleArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corazon_m.pkl")
	require.NoError(t, os.WriteFile(path, []byte("\x80\x04opaque"), 0o644))
	return path
}

func TestPythonBackend_Predict(t *testing.T) {
	python := fakePython(t, describeOK, `{"labels":[0],"probabilities":[[0.82,0.18]]}`, 0)

	store, err := NewModelStore(StoreConfig{
		ModelPath:    pickleArtifact(t),
		PythonPath:   python,
		ProbeTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	require.True(t, store.Ready(), "load error: %v", store.LoadError())
	defer store.Close()

	st := store.Status()
	require.NotNil(t, st.Description)
	assert.Equal(t, "RandomForestClassifier", st.Description.Type)

	p := NewPredictor(store, nil, PredictorConfig{Timeout: 5 * time.Second})
	res, err := p.Predict(context.Background(), samplePatient())
	require.NoError(t, err)
	assert.Equal(t, NoRisk, res.Label)
	assert.InDelta(t, 82.0, res.NoRiskPercent(), 1e-9)
	assert.InDelta(t, 18.0, res.RiskPercent(), 1e-9)
}

func TestPythonBackend_ShapeError(t *testing.T) {
	python := fakePython(t, describeOK,
		`{"error":"ValueError: X has 4 features, but model is expecting 5 features as input.","kind":"shape"}`, 1)

	store, err := NewModelStore(StoreConfig{ModelPath: pickleArtifact(t), PythonPath: python}, nil)
	require.NoError(t, err)
	require.True(t, store.Ready())
	defer store.Close()

	p := NewPredictor(store, nil, PredictorConfig{Timeout: 5 * time.Second})
	_, err = p.PredictVector(context.Background(), []float64{50, 1, 120, 200})
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindShape, ie.Kind)
}

func TestPythonBackend_GarbageOutput(t *testing.T) {
	python := fakePython(t, describeOK, `Traceback (most recent call last)`, 0)

	store, err := NewModelStore(StoreConfig{ModelPath: pickleArtifact(t), PythonPath: python}, nil)
	require.NoError(t, err)
	defer store.Close()

	p := NewPredictor(store, nil, PredictorConfig{})
	_, err = p.Predict(context.Background(), samplePatient())
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindOutput, ie.Kind)
}

func TestPythonBackend_ProbeRejectsModelWithoutProba(t *testing.T) {
	python := fakePython(t,
		`{"type":"LinearSVC","n_features":5,"classes":[0,1],"has_predict":true,"has_predict_proba":false}`,
		`{}`, 0)

	store, err := NewModelStore(StoreConfig{ModelPath: pickleArtifact(t), PythonPath: python}, nil)
	require.NoError(t, err)
	assert.False(t, store.Ready())
	assert.Contains(t, store.LoadError().Error(), "predict_proba")
}
