package cfg

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jroyseravila/heart/internal/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "modelos/corazon_m.pkl" {
					t.Errorf("expected default ModelPath, got %s", settings.ModelPath)
				}
				if settings.ModelBackend != common.BackendAuto {
					t.Errorf("expected backend auto, got %s", settings.ModelBackend)
				}
				if settings.HTTPPort != 8501 {
					t.Errorf("expected default HTTPPort 8501, got %d", settings.HTTPPort)
				}
				if settings.InferenceTimeout != 10*time.Second {
					t.Errorf("expected default InferenceTimeout 10s, got %v", settings.InferenceTimeout)
				}
				if settings.CacheSize != common.DefaultCacheSize {
					t.Errorf("expected default CacheSize, got %d", settings.CacheSize)
				}
				if settings.DataPath != "data" {
					t.Errorf("expected default DataPath data, got %s", settings.DataPath)
				}
				if len(settings.AllowedOrigins) != 0 {
					t.Errorf("expected no allowed origins, got %v", settings.AllowedOrigins)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"MODEL_PATH":        "/srv/models/corazon_m.onnx",
				"MODEL_BACKEND":     "onnx",
				"ONNXRUNTIME_LIB":   "/usr/lib/libonnxruntime.so",
				"INFERENCE_TIMEOUT": "3s",
				"CACHE_SIZE":        "0",
				"HTTP_PORT":         "9090",
				"LOG_FORMAT":        "json",
				"PROGRESS_DELAY":    "0s",
				"ALLOWED_ORIGINS":   "https://a.example, https://b.example",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "/srv/models/corazon_m.onnx" {
					t.Errorf("expected ModelPath override, got %s", settings.ModelPath)
				}
				if settings.ModelBackend != "onnx" {
					t.Errorf("expected backend onnx, got %s", settings.ModelBackend)
				}
				if settings.OnnxRuntimeLib != "/usr/lib/libonnxruntime.so" {
					t.Errorf("unexpected OnnxRuntimeLib %s", settings.OnnxRuntimeLib)
				}
				if settings.InferenceTimeout != 3*time.Second {
					t.Errorf("expected InferenceTimeout 3s, got %v", settings.InferenceTimeout)
				}
				if settings.CacheSize != 0 {
					t.Errorf("expected cache disabled, got %d", settings.CacheSize)
				}
				if settings.HTTPPort != 9090 {
					t.Errorf("expected HTTPPort 9090, got %d", settings.HTTPPort)
				}
				if settings.ProgressDelay != 0 {
					t.Errorf("expected ProgressDelay 0, got %v", settings.ProgressDelay)
				}
				if len(settings.AllowedOrigins) != 2 || settings.AllowedOrigins[1] != "https://b.example" {
					t.Errorf("unexpected AllowedOrigins %v", settings.AllowedOrigins)
				}
				if settings.Addr() != ":9090" {
					t.Errorf("expected addr :9090, got %s", settings.Addr())
				}
			},
		},
		{
			name:    "unknown backend",
			envVars: map[string]string{"MODEL_BACKEND": "tensorflow"},
			wantErr: true,
		},
		{
			name:    "privileged port",
			envVars: map[string]string{"HTTP_PORT": "80"},
			wantErr: true,
		},
		{
			name:    "timeout too large",
			envVars: map[string]string{"INFERENCE_TIMEOUT": "10m"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all environment variables first
			clearTestEnv(t)

			// Set test environment variables
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
model:
  path: "modelos/corazon_m.json"
  backend: "native"
  inferenceTimeout: "5s"

cache:
  size: 64
  ttl: "2m"

server:
  port: 8600
  progressDelay: "5ms"
  allowedOrigins:
    - "https://clinic.example"

system:
  dataPath: "/var/lib/heart"

logging:
  level: "debug"
  format: "json"
  file: "/var/log/heart.log"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "modelos/corazon_m.json" {
					t.Errorf("expected ModelPath from YAML, got %s", settings.ModelPath)
				}
				if settings.ModelBackend != "native" {
					t.Errorf("expected backend native, got %s", settings.ModelBackend)
				}
				if settings.InferenceTimeout != 5*time.Second {
					t.Errorf("expected InferenceTimeout 5s, got %v", settings.InferenceTimeout)
				}
				if settings.CacheSize != 64 || settings.CacheTTL != 2*time.Minute {
					t.Errorf("unexpected cache settings %d/%v", settings.CacheSize, settings.CacheTTL)
				}
				if settings.HTTPPort != 8600 {
					t.Errorf("expected HTTPPort 8600, got %d", settings.HTTPPort)
				}
				if settings.ProgressDelay != 5*time.Millisecond {
					t.Errorf("expected ProgressDelay 5ms, got %v", settings.ProgressDelay)
				}
				if settings.DataPath != "/var/lib/heart" {
					t.Errorf("expected DataPath from YAML, got %s", settings.DataPath)
				}
				if settings.LogLevel != "debug" || settings.LogFormat != "json" || settings.LogFile != "/var/log/heart.log" {
					t.Errorf("unexpected logging settings %s/%s/%s", settings.LogLevel, settings.LogFormat, settings.LogFile)
				}
				if len(settings.AllowedOrigins) != 1 {
					t.Errorf("expected one allowed origin, got %v", settings.AllowedOrigins)
				}
			},
		},
		{
			name: "env overrides YAML",
			yamlContent: `
model:
  path: "modelos/corazon_m.json"
server:
  port: 8600
`,
			envOverrides: map[string]string{
				"MODEL_PATH": "override.pkl",
				"HTTP_PORT":  "8700",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "override.pkl" {
					t.Errorf("expected ModelPath override.pkl, got %s", settings.ModelPath)
				}
				if settings.HTTPPort != 8700 {
					t.Errorf("expected HTTPPort 8700, got %d", settings.HTTPPort)
				}
			},
		},
		{
			name:        "empty YAML uses defaults",
			yamlContent: "{}\n",
			wantErr:     false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != common.DefaultModelPath {
					t.Errorf("expected default ModelPath, got %s", settings.ModelPath)
				}
				if settings.HTTPPort != common.DefaultHTTPPort {
					t.Errorf("expected default HTTPPort, got %d", settings.HTTPPort)
				}
			},
		},
		{
			name: "bad duration",
			yamlContent: `
model:
  inferenceTimeout: "soon"
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: "model: [unclosed",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("uses CONFIG_FILE when set", func(t *testing.T) {
		clearTestEnv(t)

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "model:\n  path: \"from-yaml.json\"\n"
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.ModelPath != "from-yaml.json" {
			t.Errorf("expected ModelPath from YAML, got %s", settings.ModelPath)
		}
	})

	t.Run("missing CONFIG_FILE is an error", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("falls back to environment", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("MODEL_PATH", "env.pkl")

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.ModelPath != "env.pkl" {
			t.Errorf("expected ModelPath env.pkl, got %s", settings.ModelPath)
		}
	})
}

func TestLoad_MalformedEnvValuesWarn(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	t.Run("environment only", func(t *testing.T) {
		buf.Reset()
		clearTestEnv(t)
		t.Setenv("INFERENCE_TIMEOUT", "ten seconds")
		t.Setenv("CACHE_SIZE", "lots")
		t.Setenv("HTTP_PORT", "85o1")

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.InferenceTimeout != common.DefaultInferenceTimeout {
			t.Errorf("expected default InferenceTimeout, got %v", settings.InferenceTimeout)
		}
		if settings.CacheSize != common.DefaultCacheSize {
			t.Errorf("expected default CacheSize, got %d", settings.CacheSize)
		}
		if settings.HTTPPort != common.DefaultHTTPPort {
			t.Errorf("expected default HTTPPort, got %d", settings.HTTPPort)
		}

		out := buf.String()
		if n := strings.Count(out, "ignoring malformed environment value"); n != 3 {
			t.Errorf("expected 3 warnings, got %d: %s", n, out)
		}
		for _, want := range []string{`"key":"INFERENCE_TIMEOUT"`, `"value":"lots"`, `"key":"HTTP_PORT"`, `"level":"warn"`} {
			if !strings.Contains(out, want) {
				t.Errorf("expected log to contain %s, got %s", want, out)
			}
		}
	})

	t.Run("config file value is the fallback", func(t *testing.T) {
		buf.Reset()
		clearTestEnv(t)

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "cache:\n  size: 64\n"
		if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("CONFIG_FILE", configPath)
		t.Setenv("CACHE_SIZE", "sixty")

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.CacheSize != 64 {
			t.Errorf("expected CacheSize 64 from YAML, got %d", settings.CacheSize)
		}
		if !strings.Contains(buf.String(), `"using":64`) {
			t.Errorf("expected warning to name the YAML fallback, got %s", buf.String())
		}
	})

	t.Run("well formed values stay quiet", func(t *testing.T) {
		buf.Reset()
		clearTestEnv(t)
		t.Setenv("INFERENCE_TIMEOUT", "3s")

		if _, err := Load(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "malformed") {
			t.Errorf("unexpected warning: %s", buf.String())
		}
	})
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		common.EnvConfigFile, common.EnvModelPath, common.EnvModelBackend,
		common.EnvPythonPath, common.EnvOnnxRuntimeLib, common.EnvInferenceTimeout,
		common.EnvCacheSize, common.EnvCacheTTL, common.EnvHTTPPort,
		common.EnvDataPath, common.EnvLogLevel, common.EnvLogFormat,
		common.EnvLogFile, common.EnvProgressDelay, common.EnvAllowedOrigins,
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
