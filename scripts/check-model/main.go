package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/features"
	"github.com/jroyseravila/heart/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath = flag.String("model", common.DefaultModelPath, "Path to the model artifact")
		backend   = flag.String("backend", common.BackendAuto, "Model backend: auto, python, native, onnx")
		python    = flag.String("python", "", "Python interpreter for pickled models")
		onnxLib   = flag.String("onnxruntime", "", "Path to the ONNX Runtime shared library")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Println("🧪 Checking heart risk model")
	fmt.Println("============================")
	fmt.Printf("📁 Model path: %s\n", *modelPath)

	store, err := ml.NewModelStore(ml.StoreConfig{
		ModelPath:      *modelPath,
		Backend:        *backend,
		PythonPath:     *python,
		OnnxRuntimeLib: *onnxLib,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid model configuration")
	}
	defer store.Close()

	status := store.Status()
	if !status.Ready {
		fmt.Printf("❌ %s\n", status.Error)
		os.Exit(1)
	}
	fmt.Printf("✅ Loaded with %s backend\n", status.Backend)
	if status.Artifact != nil {
		fmt.Printf("   sha256: %s (%d bytes)\n", status.Artifact.SHA256, status.Artifact.Size)
	}
	if status.Description != nil {
		fmt.Printf("   type: %s, features: %d, classes: %v\n",
			status.Description.Type, status.Description.NFeatures, status.Description.Classes)
	}

	patient := features.DefaultPatient()
	fmt.Printf("\n🔍 Reference vector: %v\n", patient.Vector())

	predictor := ml.NewPredictor(store, nil, ml.PredictorConfig{Timeout: common.DefaultInferenceTimeout})
	start := time.Now()
	res, err := predictor.Predict(context.Background(), patient)
	if err != nil {
		fmt.Printf("❌ %s\n", fmt.Sprintf(common.MsgPredictionFailed, err))
		os.Exit(1)
	}

	for _, line := range res.Lines() {
		fmt.Println(line)
	}
	fmt.Printf("\n⏱  %v\n", time.Since(start))

	sum := res.NoRiskPercent() + res.RiskPercent()
	if sum < 99.99 || sum > 100.01 {
		fmt.Printf("⚠️  Probabilities add up to %.4f%%\n", sum)
	}
}
