package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jroyseravila/heart/internal/common"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath        string
	ModelBackend     string
	PythonPath       string
	OnnxRuntimeLib   string
	InferenceTimeout time.Duration
	CacheSize        int
	CacheTTL         time.Duration
	HTTPPort         int
	DataPath         string
	LogLevel         string
	LogFormat        string
	LogFile          string
	ProgressDelay    time.Duration
	AllowedOrigins   []string
}

type ConfigFile struct {
	Model struct {
		Path             string `yaml:"path"`
		Backend          string `yaml:"backend"`
		PythonPath       string `yaml:"pythonPath"`
		OnnxRuntimeLib   string `yaml:"onnxRuntimeLib"`
		InferenceTimeout string `yaml:"inferenceTimeout"`
	} `yaml:"model"`

	Cache struct {
		Size int    `yaml:"size"`
		TTL  string `yaml:"ttl"`
	} `yaml:"cache"`

	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		ProgressDelay  string   `yaml:"progressDelay"`
	} `yaml:"server"`

	System struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"system"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	timeout, err := parseDurationOrDefault(config.Model.InferenceTimeout, common.DefaultInferenceTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("model.inferenceTimeout: %w", err)
	}
	cacheTTL, err := parseDurationOrDefault(config.Cache.TTL, common.DefaultCacheTTL)
	if err != nil {
		return Settings{}, fmt.Errorf("cache.ttl: %w", err)
	}
	progressDelay, err := parseDurationOrDefault(config.Server.ProgressDelay, common.DefaultProgressDelay)
	if err != nil {
		return Settings{}, fmt.Errorf("server.progressDelay: %w", err)
	}

	// Override with environment variables if they exist
	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelBackend:     getEnvOrDefault(common.EnvModelBackend, orDefault(config.Model.Backend, common.DefaultModelBackend)),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		OnnxRuntimeLib:   getEnvOrDefault(common.EnvOnnxRuntimeLib, config.Model.OnnxRuntimeLib),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, timeout),
		CacheSize:        getIntFromEnvOrConfig(common.EnvCacheSize, config.Cache.Size, common.DefaultCacheSize),
		CacheTTL:         getDurationOrDefault(common.EnvCacheTTL, cacheTTL),
		HTTPPort:         getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.Port, common.DefaultHTTPPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, orDefault(config.System.DataPath, common.DefaultDataPath)),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		LogFile:          getEnvOrDefault(common.EnvLogFile, config.Logging.File),
		ProgressDelay:    getDurationOrDefault(common.EnvProgressDelay, progressDelay),
		AllowedOrigins:   getListFromEnvOrConfig(common.EnvAllowedOrigins, config.Server.AllowedOrigins),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelBackend:     getEnvOrDefault(common.EnvModelBackend, common.DefaultModelBackend),
		PythonPath:       os.Getenv(common.EnvPythonPath), // optional, auto-detected
		OnnxRuntimeLib:   os.Getenv(common.EnvOnnxRuntimeLib),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, common.DefaultInferenceTimeout),
		CacheSize:        getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		CacheTTL:         getDurationOrDefault(common.EnvCacheTTL, common.DefaultCacheTTL),
		HTTPPort:         getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		LogFile:          os.Getenv(common.EnvLogFile),
		ProgressDelay:    getDurationOrDefault(common.EnvProgressDelay, common.DefaultProgressDelay),
		AllowedOrigins:   splitOrDefault(os.Getenv(common.EnvAllowedOrigins), nil),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Addr is the listen address of the HTTP server.
func (s *Settings) Addr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseDurationOrDefault(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		warnMalformed(key, v, err, defaultValue)
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		warnMalformed(key, v, err, defaultValue)
	}
	return defaultValue
}

// warnMalformed reports an environment value that could not be parsed and is
// being replaced by fallback.
func warnMalformed(key, value string, err error, fallback any) {
	log.Warn().
		Err(err).
		Str("key", key).
		Str("value", value).
		Interface("using", fallback).
		Msg("ignoring malformed environment value")
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getIntFromEnvOrConfig prefers the environment, then a non-zero config
// value, then the default. A zero cache size can therefore only be set
// through the environment.
func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		val, err := strconv.Atoi(env)
		if err == nil {
			return val
		}
		fallback := defaultValue
		if configValue != 0 {
			fallback = configValue
		}
		warnMalformed(key, env, err, fallback)
		return fallback
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.ModelPath) == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	switch strings.ToLower(settings.ModelBackend) {
	case common.BackendAuto, common.BackendPython, common.BackendNative, common.BackendONNX:
	default:
		return fmt.Errorf("model backend must be one of auto, python, native, onnx, got %q", settings.ModelBackend)
	}

	// Validate time durations
	if settings.InferenceTimeout < common.MinInferenceTimeout || settings.InferenceTimeout > common.MaxInferenceTimeout {
		return fmt.Errorf("inference timeout must be between %v and %v, got %v",
			common.MinInferenceTimeout, common.MaxInferenceTimeout, settings.InferenceTimeout)
	}
	if settings.CacheSize > 0 && settings.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when the cache is enabled, got %v", settings.CacheTTL)
	}
	if settings.ProgressDelay < 0 || settings.ProgressDelay > common.MaxProgressDelay {
		return fmt.Errorf("progress delay must be between 0 and %v, got %v", common.MaxProgressDelay, settings.ProgressDelay)
	}

	// Validate integer values
	if settings.CacheSize < 0 || settings.CacheSize > common.MaxCacheSize {
		return fmt.Errorf("cache size must be between 0 and %d, got %d", common.MaxCacheSize, settings.CacheSize)
	}
	if settings.HTTPPort < common.MinHTTPPort || settings.HTTPPort > common.MaxHTTPPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinHTTPPort, common.MaxHTTPPort, settings.HTTPPort)
	}

	switch settings.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	for _, origin := range settings.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("allowed origin %q must be * or an http(s) URL", origin)
		}
	}

	return nil
}
