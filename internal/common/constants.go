package common

import "time"

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvModelPath        = "MODEL_PATH"
	EnvModelBackend     = "MODEL_BACKEND"
	EnvPythonPath       = "PYTHON_PATH"
	EnvOnnxRuntimeLib   = "ONNXRUNTIME_LIB"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvCacheSize        = "CACHE_SIZE"
	EnvCacheTTL         = "CACHE_TTL"
	EnvHTTPPort         = "HTTP_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvLogFile          = "LOG_FILE"
	EnvProgressDelay    = "PROGRESS_DELAY"
	EnvAllowedOrigins   = "ALLOWED_ORIGINS"
)

// Model backends
const (
	BackendAuto   = "auto"
	BackendPython = "python"
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// Configuration defaults
const (
	DefaultModelPath        = "modelos/corazon_m.pkl"
	DefaultModelBackend     = BackendAuto
	DefaultInferenceTimeout = 10 * time.Second
	DefaultCacheSize        = 256
	DefaultCacheTTL         = 10 * time.Minute
	DefaultHTTPPort         = 8501
	DefaultDataPath         = "data"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultProgressDelay    = 20 * time.Millisecond
	DefaultMetadataFile     = "model_metadata.json"
	DefaultLedgerFile       = "heart.db"
)

// HTTP
const (
	HeaderRequestID     = "X-Request-ID"
	DefaultLedgerLimit  = 20
	MaxLedgerLimit      = 500
	ShutdownTimeout     = 10 * time.Second
	HTTPReadTimeout     = 10 * time.Second
	HTTPWriteTimeout    = 30 * time.Second
	HTTPIdleTimeout     = 120 * time.Second
	WSWriteTimeout      = 5 * time.Second
	MaxRequestBodyBytes = 1 << 16
)

// Validation constants
const (
	MinHTTPPort         = 1024
	MaxHTTPPort         = 65535
	MaxCacheSize        = 100000
	MinInferenceTimeout = 100 * time.Millisecond
	MaxInferenceTimeout = 2 * time.Minute
	MaxProgressDelay    = time.Second
)

// User-facing texts
const (
	LabelNoRisk         = "Sin Riesgo"
	LabelRisk           = "Riesgo"
	HeadlineRisk        = "Riesgo Cardíaco"
	ChartTitle          = "Distribución de Probabilidades (%)"
	MsgModelLoaded      = "Modelo cargado correctamente."
	MsgModelNotFound    = "No se encontró el modelo en: %s"
	MsgModelNotLoaded   = "El modelo no está cargado."
	MsgModelLoadFailed  = "No se pudo cargar el modelo en %s: %v"
	MsgPredictionFailed = "Ocurrió un error durante la predicción: %v"
)
