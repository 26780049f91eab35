package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"eeg-stress-api/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Host           string
	Port           int
	ModelPath      string
	ONNXLibrary    string
	DataPath       string
	TempDir        string
	MaxUploadBytes int64
	UploadFields   []string
	CORSOrigins    []string
	RateLimit      int
	RateWindow     time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	HistoryLimit   int
	LogLevel       string
	LogFormat      string
}

type ConfigFile struct {
	Server struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		ReadTimeout    string   `yaml:"readTimeout"`
		WriteTimeout   string   `yaml:"writeTimeout"`
		MaxUploadBytes int64    `yaml:"maxUploadBytes"`
		UploadFields   []string `yaml:"uploadFields"`
		CORSOrigins    []string `yaml:"corsOrigins"`
		RateLimit      int      `yaml:"rateLimit"`
		RateWindow     string   `yaml:"rateWindow"`
	} `yaml:"server"`

	ML struct {
		ModelPath   string `yaml:"modelPath"`
		ONNXLibrary string `yaml:"onnxLibrary"`
	} `yaml:"ml"`

	Storage struct {
		DataPath     string `yaml:"dataPath"`
		TempDir      string `yaml:"tempDir"`
		HistoryLimit int    `yaml:"historyLimit"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads the optional .env file, then the YAML file named by CONFIG_FILE
// when set, and finally falls back to plain environment variables.
func Load() (Settings, error) {
	if err := loadEnvFile(getEnvOrDefault(common.EnvEnvFile, common.DefaultEnvFile)); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// loadEnvFile populates the process environment from a dotenv file. Variables
// already present in the environment win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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

	readTimeout, err := time.ParseDuration(config.Server.ReadTimeout)
	if err != nil {
		readTimeout = 30 * time.Second
	}

	writeTimeout, err := time.ParseDuration(config.Server.WriteTimeout)
	if err != nil {
		writeTimeout = 2 * time.Minute
	}

	rateWindow, err := time.ParseDuration(config.Server.RateWindow)
	if err != nil {
		rateWindow = time.Minute
	}

	settings := Settings{
		Host:           getEnvOrDefault(common.EnvHost, orString(config.Server.Host, common.DefaultHost)),
		Port:           getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, orString(config.ML.ModelPath, common.DefaultModelPath)),
		ONNXLibrary:    getEnvOrDefault(common.EnvONNXLibrary, config.ML.ONNXLibrary),
		DataPath:       getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		TempDir:        getEnvOrDefault(common.EnvTempDir, config.Storage.TempDir),
		MaxUploadBytes: getInt64FromEnvOrConfig(common.EnvMaxUploadBytes, config.Server.MaxUploadBytes, common.DefaultMaxUploadBytes),
		UploadFields:   getListFromEnvOrConfig(common.EnvUploadFields, config.Server.UploadFields, common.DefaultUploadFields),
		CORSOrigins:    getListFromEnvOrConfig(common.EnvCORSOrigins, config.Server.CORSOrigins, []string{"*"}),
		RateLimit:      getIntFromEnvOrConfig(common.EnvRateLimit, config.Server.RateLimit, common.DefaultRateLimit),
		RateWindow:     getDurationOrDefault(common.EnvRateWindow, rateWindow),
		ReadTimeout:    getDurationOrDefault(common.EnvReadTimeout, readTimeout),
		WriteTimeout:   getDurationOrDefault(common.EnvWriteTimeout, writeTimeout),
		HistoryLimit:   getIntFromEnvOrConfig(common.EnvHistoryLimit, config.Storage.HistoryLimit, common.DefaultHistoryLimit),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orString(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:      getEnvOrDefault(common.EnvLogFormat, orString(config.Logging.Format, common.DefaultLogFormat)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Host:           getEnvOrDefault(common.EnvHost, common.DefaultHost),
		Port:           getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ONNXLibrary:    os.Getenv(common.EnvONNXLibrary), // optional
		DataPath:       os.Getenv(common.EnvDataPath),    // optional
		TempDir:        os.Getenv(common.EnvTempDir),     // optional, os.TempDir() when empty
		MaxUploadBytes: getInt64OrDefault(common.EnvMaxUploadBytes, common.DefaultMaxUploadBytes),
		UploadFields:   splitOrDefault(os.Getenv(common.EnvUploadFields), common.DefaultUploadFields),
		CORSOrigins:    splitOrDefault(os.Getenv(common.EnvCORSOrigins), []string{"*"}),
		RateLimit:      getIntOrDefault(common.EnvRateLimit, common.DefaultRateLimit),
		RateWindow:     getDurationOrDefault(common.EnvRateWindow, time.Minute),
		ReadTimeout:    getDurationOrDefault(common.EnvReadTimeout, 30*time.Second),
		WriteTimeout:   getDurationOrDefault(common.EnvWriteTimeout, 2*time.Minute),
		HistoryLimit:   getIntOrDefault(common.EnvHistoryLimit, common.DefaultHistoryLimit),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:      getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Addr returns the listen address in host:port form.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
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
	if len(out) == 0 {
		return def
	}
	return out
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getListFromEnvOrConfig(key string, configValue, defaultValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, defaultValue)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs bounds checking of every configuration value
func validateSettings(settings *Settings) error {
	if settings.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if strings.TrimSpace(settings.ModelPath) == "" {
		return errors.New(common.ErrMsgModelPathRequired)
	}

	if settings.MaxUploadBytes < common.MinUploadBytes || settings.MaxUploadBytes > common.MaxUploadBytes {
		return fmt.Errorf("max upload bytes must be between %d and %d, got %d",
			common.MinUploadBytes, common.MaxUploadBytes, settings.MaxUploadBytes)
	}
	if len(settings.UploadFields) == 0 {
		return fmt.Errorf("at least one upload field name must be specified")
	}

	if settings.RateLimit < 0 || settings.RateLimit > common.MaxRateLimit {
		return fmt.Errorf("rate limit must be between 0 and %d, got %d", common.MaxRateLimit, settings.RateLimit)
	}
	if settings.RateLimit > 0 && (settings.RateWindow < time.Second || settings.RateWindow > time.Hour) {
		return fmt.Errorf("rate window must be between 1s and 1h, got %v", settings.RateWindow)
	}
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 10*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 10m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 30*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 30m, got %v", settings.WriteTimeout)
	}

	if settings.HistoryLimit <= 0 || settings.HistoryLimit > common.MaxHistoryLimit {
		return fmt.Errorf("history limit must be between 1 and %d, got %d", common.MaxHistoryLimit, settings.HistoryLimit)
	}

	switch settings.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
