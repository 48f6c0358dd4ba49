// Command heartcheck runs a single heart risk prediction and prints the
// result lines, either in-process against a model file or against a running
// heartrisk server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/features"
	"github.com/jroyseravila/heart/internal/ml"
	"github.com/jroyseravila/heart/internal/web"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func main() {
	defaults := features.DefaultPatient()
	var (
		modelPath   = flag.String("model", "", "Path to a model artifact (in-process mode)")
		backend     = flag.String("backend", common.BackendAuto, "Model backend: auto, python, native, onnx")
		pythonPath  = flag.String("python", "", "Python interpreter for pickled models")
		onnxLib     = flag.String("onnxruntime", "", "Path to the ONNX Runtime shared library")
		serverURL   = flag.String("server", "", "Base URL of a running heartrisk server (remote mode)")
		timeout     = flag.Duration("timeout", common.DefaultInferenceTimeout, "Prediction timeout")
		age         = flag.Int("edad", defaults.Age, "Edad (años)")
		sex         = flag.String("genero", defaults.Sex.String(), "Género: Masculino o Femenino")
		restingBP   = flag.Int("presion", defaults.RestingBP, "Presión arterial en reposo (mmHg)")
		cholesterol = flag.Int("colesterol", defaults.Cholesterol, "Colesterol (mg/dl)")
		maxHR       = flag.Int("frecuencia", defaults.MaxHeartRate, "Frecuencia máxima (lpm)")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	patient, err := features.PatientForm{
		Age:          *age,
		Sex:          *sex,
		RestingBP:    *restingBP,
		Cholesterol:  *cholesterol,
		MaxHeartRate: *maxHR,
	}.Patient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid input: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var lines []string
	switch {
	case *serverURL != "":
		lines, err = predictRemote(ctx, *serverURL, patient)
	case *modelPath != "":
		lines, err = predictLocal(ctx, ml.StoreConfig{
			ModelPath:      *modelPath,
			Backend:        *backend,
			PythonPath:     *pythonPath,
			OnnxRuntimeLib: *onnxLib,
			ProbeTimeout:   *timeout,
		}, patient)
	default:
		fmt.Fprintln(os.Stderr, "either -model or -server is required")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}

func predictLocal(ctx context.Context, cfg ml.StoreConfig, patient features.Patient) ([]string, error) {
	store, err := ml.NewModelStore(cfg, nil)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if !store.Ready() {
		if store.NotFound() {
			return nil, fmt.Errorf(common.MsgModelNotFound, store.Path())
		}
		return nil, fmt.Errorf(common.MsgModelLoadFailed, store.Path(), store.LoadError())
	}

	predictor := ml.NewPredictor(store, nil, ml.PredictorConfig{Timeout: cfg.ProbeTimeout})
	res, err := predictor.Predict(ctx, patient)
	if err != nil {
		if errors.Is(err, ml.ErrModelUnavailable) {
			return nil, fmt.Errorf(common.MsgPredictionFailed, common.MsgModelNotLoaded)
		}
		return nil, fmt.Errorf(common.MsgPredictionFailed, err)
	}
	return res.Lines(), nil
}

func predictRemote(ctx context.Context, baseURL string, patient features.Patient) ([]string, error) {
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetTimeout(30 * time.Second)

	var out web.PredictResponse
	var apiErr apiError
	resp, err := client.R().
		SetContext(ctx).
		SetBody(web.PredictRequest{Patient: &patient}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusServiceUnavailable {
			return nil, fmt.Errorf(common.MsgPredictionFailed, common.MsgModelNotLoaded)
		}
		return nil, fmt.Errorf(common.MsgPredictionFailed, fmt.Sprintf("%s (%s, HTTP %d)", apiErr.Error, apiErr.Kind, resp.StatusCode()))
	}

	log.Debug().
		Str("request_id", out.RequestID).
		Float64("latency_ms", out.LatencyMS).
		Msg("remote prediction")
	return out.Lines, nil
}
