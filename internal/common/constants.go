// Package common holds environment keys, defaults and validation bounds shared
// by the configuration loader and the binaries.
package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvEnvFile        = "ENV_FILE"
	EnvHost           = "EEG_HOST"
	EnvPort           = "EEG_PORT"
	EnvModelPath      = "MODEL_PATH"
	EnvONNXLibrary    = "ONNX_LIBRARY_PATH"
	EnvDataPath       = "DATA_PATH"
	EnvTempDir        = "TEMP_DIR"
	EnvMaxUploadBytes = "MAX_UPLOAD_BYTES"
	EnvUploadFields   = "UPLOAD_FIELDS"
	EnvCORSOrigins    = "CORS_ORIGINS"
	EnvRateLimit      = "RATE_LIMIT"
	EnvRateWindow     = "RATE_WINDOW"
	EnvReadTimeout    = "READ_TIMEOUT"
	EnvWriteTimeout   = "WRITE_TIMEOUT"
	EnvHistoryLimit   = "HISTORY_LIMIT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Configuration defaults
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultModelPath      = "models/stress_model.onnx"
	DefaultEnvFile        = ".env"
	DefaultMaxUploadBytes = 100 << 20 // 100 MiB
	DefaultRateLimit      = 60
	DefaultHistoryLimit   = 50
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// DefaultUploadFields are the multipart field names accepted for the recording.
// "file" comes from the browser frontend, "eeg_file" from scripted clients.
var DefaultUploadFields = []string{"file", "eeg_file"}

// Validation constants
const (
	MinPort         = 1
	MaxPort         = 65535
	MinUploadBytes  = 1 << 10
	MaxUploadBytes  = 2 << 30
	MaxRateLimit    = 100000
	MaxHistoryLimit = 1000
)

// Common error messages
const (
	ErrMsgModelPathRequired = "model path is required"
)
