package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/features"
	"github.com/jroyseravila/heart/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		outPath = flag.String("out", "modelos/corazon_m.json", "Where to write the native model")
		version = flag.String("version", "sample-1", "Version recorded in the metadata side-file")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Println("🫀 Writing sample heart risk model")
	fmt.Printf("📁 Model path: %s\n", *outPath)

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create model directory")
	}

	model := ml.SampleLogisticModel()
	if err := model.Save(*outPath); err != nil {
		log.Fatal().Err(err).Msg("failed to save model")
	}

	md := ml.ModelMetadata{
		Version:   *version,
		TrainedAt: time.Now().UTC(),
		Features:  features.FeatureNames,
		Algorithm: model.Type,
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode metadata")
	}
	mdPath := filepath.Join(filepath.Dir(*outPath), common.DefaultMetadataFile)
	if err := os.WriteFile(mdPath, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("failed to write metadata")
	}

	fmt.Printf("✅ Model written (%s, %d features)\n", model.Type, model.NFeatures)
	fmt.Printf("✅ Metadata written to %s\n", mdPath)
	fmt.Printf("\nRun the service with:\n  MODEL_PATH=%s MODEL_BACKEND=native go run ./cmd/heartrisk\n", *outPath)
}
