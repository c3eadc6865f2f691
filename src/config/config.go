package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	DefaultBaseURL    = "https://openrouter.ai/api/v1"

	DefaultModeEnvVar   = "DEFAULT_MODE"
	ModeRegion          = "region"
	ModeFullScreen      = "full-screen"
	IntervalManual      = "manual"
	DefaultIntervalSecs = 5

	SinkAssistant = "assistant"
	SinkClipboard = "clipboard"
	SinkStdout    = "stdout"
	SinkNone      = "none"

	ScratchDirName = "screenshot-ocr"
)

type LoadOptions struct {
	APIKeyPathOverride  string
	DefaultModeOverride string
	IntervalOverride    string
	SinkOverride        string
}

type Config struct {
	APIKey            string
	APIKeyPath        string
	Model             string
	BaseURL           string
	Providers         []string
	EnableFileLogging bool

	Hotkey      string
	FullHotkey  string
	DefaultMode string
	Sink        string

	// CaptureInterval is either a positive number of seconds or "manual".
	CaptureInterval string

	OCRLanguage           string
	ScratchDir            string
	MinContentChars       int
	SingleMinContentChars int
	SelectionTimeoutSec   int
	JPEGQuality           int
	CycleDeadlineSec      int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) .env in the executable directory
	// 2) file named by SCREEN_OCR_ASSIST
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var providers []string
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		for _, provider := range strings.Split(providersStr, ",") {
			if trimmed := strings.TrimSpace(provider); trimmed != "" {
				providers = append(providers, trimmed)
			}
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)
	apiKey := resolveAPIKey(apiKeyPath)

	cfg := &Config{
		APIKey:            apiKey,
		APIKeyPath:        apiKeyPath,
		Model:             os.Getenv("MODEL"),
		BaseURL:           getEnvWithDefault("ASSISTANT_BASE_URL", DefaultBaseURL),
		Providers:         providers,
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",

		Hotkey:      getEnvWithDefault("HOTKEY", "Ctrl+Alt+Q"),
		FullHotkey:  getEnvWithDefault("FULL_HOTKEY", "Ctrl+Alt+W"),
		DefaultMode: resolveDefaultModeValue(opts),
		Sink:        resolveSinkValue(opts, apiKey),

		CaptureInterval: resolveIntervalValue(opts),

		OCRLanguage:           getEnvWithDefault("OCR_LANGUAGE", "eng"),
		ScratchDir:            getEnvWithDefault("SCRATCH_DIR", filepath.Join(os.TempDir(), ScratchDirName)),
		MinContentChars:       getEnvInt("MIN_CONTENT_CHARS", 10, 0),
		SingleMinContentChars: getEnvInt("SINGLE_MIN_CONTENT_CHARS", 0, 0),
		SelectionTimeoutSec:   getEnvInt("SELECTION_TIMEOUT_SEC", 30, 1),
		JPEGQuality:           getEnvInt("JPEG_QUALITY", 90, 1),
		CycleDeadlineSec:      getEnvInt("CYCLE_DEADLINE_SEC", 20, 1),
	}
	if cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 90
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv("SCREEN_OCR_ASSIST"); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENROUTER_API_KEY")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to def when the value is missing, malformed or below floor.
func getEnvInt(key string, def, floor int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return def
	}
	return n
}

// ResolveMode maps user input onto ModeRegion or ModeFullScreen.
func ResolveMode(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "full", "screen", "fullscreen", ModeFullScreen:
		return ModeFullScreen
	default:
		return ModeRegion
	}
}

func resolveDefaultModeValue(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.DefaultModeOverride); override != "" {
		return ResolveMode(override)
	}
	return ResolveMode(os.Getenv(DefaultModeEnvVar))
}

func resolveSink(value, apiKey string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SinkAssistant:
		return SinkAssistant
	case SinkClipboard:
		return SinkClipboard
	case SinkStdout:
		return SinkStdout
	case SinkNone:
		return SinkNone
	}
	if apiKey != "" {
		return SinkAssistant
	}
	return SinkClipboard
}

func resolveSinkValue(opts LoadOptions, apiKey string) string {
	if override := strings.TrimSpace(opts.SinkOverride); override != "" {
		return resolveSink(override, apiKey)
	}
	return resolveSink(os.Getenv("SESSION_SINK"), apiKey)
}

func resolveIntervalValue(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.IntervalOverride); override != "" {
		return override
	}
	return getEnvWithDefault("CAPTURE_INTERVAL", IntervalManual)
}
