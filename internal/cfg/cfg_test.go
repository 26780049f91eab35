package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
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
				if settings.Host != "0.0.0.0" {
					t.Errorf("expected default host 0.0.0.0, got %s", settings.Host)
				}
				if settings.Port != 8000 {
					t.Errorf("expected default port 8000, got %d", settings.Port)
				}
				if settings.ModelPath != "models/stress_model.onnx" {
					t.Errorf("expected default model path, got %s", settings.ModelPath)
				}
				if len(settings.UploadFields) != 2 || settings.UploadFields[0] != "file" || settings.UploadFields[1] != "eeg_file" {
					t.Errorf("expected default upload fields [file eeg_file], got %v", settings.UploadFields)
				}
				if settings.MaxUploadBytes != 100<<20 {
					t.Errorf("expected default max upload 100MiB, got %d", settings.MaxUploadBytes)
				}
				if settings.RateWindow != time.Minute {
					t.Errorf("expected default rate window 1m, got %v", settings.RateWindow)
				}
				if settings.Addr() != "0.0.0.0:8000" {
					t.Errorf("expected addr 0.0.0.0:8000, got %s", settings.Addr())
				}
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"EEG_HOST":         "127.0.0.1",
				"EEG_PORT":         "5000",
				"MODEL_PATH":       "/models/linear.json",
				"DATA_PATH":        "/var/lib/eeg",
				"UPLOAD_FIELDS":    "eeg_file, recording",
				"MAX_UPLOAD_BYTES": "2048",
				"RATE_LIMIT":       "0",
				"LOG_FORMAT":       "console",
				"READ_TIMEOUT":     "5s",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Addr() != "127.0.0.1:5000" {
					t.Errorf("expected addr 127.0.0.1:5000, got %s", settings.Addr())
				}
				if settings.ModelPath != "/models/linear.json" {
					t.Errorf("expected model path override, got %s", settings.ModelPath)
				}
				if settings.DataPath != "/var/lib/eeg" {
					t.Errorf("expected data path override, got %s", settings.DataPath)
				}
				if len(settings.UploadFields) != 2 || settings.UploadFields[1] != "recording" {
					t.Errorf("expected trimmed upload fields, got %v", settings.UploadFields)
				}
				if settings.MaxUploadBytes != 2048 {
					t.Errorf("expected max upload 2048, got %d", settings.MaxUploadBytes)
				}
				if settings.RateLimit != 0 {
					t.Errorf("expected rate limiting disabled, got %d", settings.RateLimit)
				}
				if settings.ReadTimeout != 5*time.Second {
					t.Errorf("expected read timeout 5s, got %v", settings.ReadTimeout)
				}
			},
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"EEG_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "upload limit too small",
			envVars: map[string]string{"MAX_UPLOAD_BYTES": "10"},
			wantErr: true,
		},
		{
			name:    "unknown log format",
			envVars: map[string]string{"LOG_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "history limit too large",
			envVars: map[string]string{"HISTORY_LIMIT": "5000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

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
server:
  host: "127.0.0.1"
  port: 8080
  readTimeout: "10s"
  writeTimeout: "1m"
  maxUploadBytes: 1048576
  uploadFields:
    - "eeg_file"
  rateLimit: 30
  rateWindow: "30s"

ml:
  modelPath: "models/custom.onnx"
  onnxLibrary: "/usr/lib/libonnxruntime.so"

storage:
  dataPath: "/data"
  historyLimit: 20

logging:
  level: "debug"
  format: "console"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Addr() != "127.0.0.1:8080" {
					t.Errorf("expected addr 127.0.0.1:8080, got %s", settings.Addr())
				}
				if settings.ModelPath != "models/custom.onnx" {
					t.Errorf("expected model path from YAML, got %s", settings.ModelPath)
				}
				if settings.ONNXLibrary != "/usr/lib/libonnxruntime.so" {
					t.Errorf("expected onnx library from YAML, got %s", settings.ONNXLibrary)
				}
				if len(settings.UploadFields) != 1 || settings.UploadFields[0] != "eeg_file" {
					t.Errorf("expected upload fields [eeg_file], got %v", settings.UploadFields)
				}
				if settings.RateWindow != 30*time.Second {
					t.Errorf("expected rate window 30s, got %v", settings.RateWindow)
				}
				if settings.HistoryLimit != 20 {
					t.Errorf("expected history limit 20, got %d", settings.HistoryLimit)
				}
				if settings.LogLevel != "debug" || settings.LogFormat != "console" {
					t.Errorf("expected debug/console logging, got %s/%s", settings.LogLevel, settings.LogFormat)
				}
			},
		},
		{
			name: "environment overrides YAML",
			yamlContent: `
server:
  port: 8080
ml:
  modelPath: "models/custom.onnx"
`,
			envOverrides: map[string]string{
				"EEG_PORT":   "9000",
				"MODEL_PATH": "override.json",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 9000 {
					t.Errorf("expected port override 9000, got %d", settings.Port)
				}
				if settings.ModelPath != "override.json" {
					t.Errorf("expected model path override, got %s", settings.ModelPath)
				}
				if settings.ReadTimeout != 30*time.Second {
					t.Errorf("expected default read timeout, got %v", settings.ReadTimeout)
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "server: [unclosed",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yamlContent), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			settings, err := loadFromYAML(path)

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

func TestLoadFromYAML_MissingFile(t *testing.T) {
	clearTestEnv(t)

	if _, err := loadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearTestEnv(t)

	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "EEG_PORT=7000\nMODEL_PATH=from-dotenv.onnx\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	// godotenv sets variables directly; register cleanup so they do not leak.
	t.Setenv("EEG_PORT", "")
	t.Setenv("MODEL_PATH", "")
	os.Unsetenv("EEG_PORT")
	os.Unsetenv("MODEL_PATH")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Port != 7000 {
		t.Errorf("expected port 7000 from env file, got %d", settings.Port)
	}
	if settings.ModelPath != "from-dotenv.onnx" {
		t.Errorf("expected model path from env file, got %s", settings.ModelPath)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if _, err := Load(); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "ENV_FILE", "EEG_HOST", "EEG_PORT", "MODEL_PATH",
		"ONNX_LIBRARY_PATH", "DATA_PATH", "TEMP_DIR", "MAX_UPLOAD_BYTES",
		"UPLOAD_FIELDS", "CORS_ORIGINS", "RATE_LIMIT", "RATE_WINDOW",
		"READ_TIMEOUT", "WRITE_TIMEOUT", "HISTORY_LIMIT", "LOG_LEVEL", "LOG_FORMAT",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
	// An .env file in the package directory must not leak into tests.
	if os.Getenv("ENV_FILE") == "" {
		t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	}
}
