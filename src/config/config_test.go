package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv("OPENROUTER_API_KEY", "test_api_key")
	t.Setenv("MODEL", "test_model")
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.APIKey != "test_api_key" {
		t.Errorf("Expected APIKey to be 'test_api_key', got '%s'", cfg.APIKey)
	}
	if cfg.Model != "test_model" {
		t.Errorf("Expected Model to be 'test_model', got '%s'", cfg.Model)
	}
	if !cfg.EnableFileLogging {
		t.Errorf("Expected EnableFileLogging to be true, got %v", cfg.EnableFileLogging)
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Expected Hotkey to be 'Ctrl+Shift+T', got '%s'", cfg.Hotkey)
	}
	if cfg.Sink != SinkAssistant {
		t.Errorf("Expected Sink=%q with an API key present, got %q", SinkAssistant, cfg.Sink)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv("OPENROUTER_API_KEY", "")
	for _, k := range []string{"CAPTURE_INTERVAL", "MIN_CONTENT_CHARS", "SELECTION_TIMEOUT_SEC", "JPEG_QUALITY", "OCR_LANGUAGE", "SESSION_SINK", DefaultModeEnvVar, "SCRATCH_DIR"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CaptureInterval != IntervalManual {
		t.Errorf("Expected interval %q, got %q", IntervalManual, cfg.CaptureInterval)
	}
	if cfg.MinContentChars != 10 {
		t.Errorf("Expected MinContentChars=10, got %d", cfg.MinContentChars)
	}
	if cfg.SelectionTimeoutSec != 30 {
		t.Errorf("Expected SelectionTimeoutSec=30, got %d", cfg.SelectionTimeoutSec)
	}
	if cfg.JPEGQuality != 90 {
		t.Errorf("Expected JPEGQuality=90, got %d", cfg.JPEGQuality)
	}
	if cfg.OCRLanguage != "eng" {
		t.Errorf("Expected OCRLanguage=eng, got %q", cfg.OCRLanguage)
	}
	if cfg.Sink != SinkClipboard {
		t.Errorf("Expected clipboard sink without API key, got %q", cfg.Sink)
	}
	if cfg.DefaultMode != ModeRegion {
		t.Errorf("Expected default mode %q, got %q", ModeRegion, cfg.DefaultMode)
	}
	if filepath.Base(cfg.ScratchDir) != ScratchDirName {
		t.Errorf("Expected scratch dir to end in %q, got %q", ScratchDirName, cfg.ScratchDir)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MIN_CONTENT_CHARS", "ten")
	t.Setenv("SELECTION_TIMEOUT_SEC", "0")
	t.Setenv("JPEG_QUALITY", "150")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MinContentChars != 10 {
		t.Errorf("Expected fallback MinContentChars=10, got %d", cfg.MinContentChars)
	}
	if cfg.SelectionTimeoutSec != 30 {
		t.Errorf("Expected fallback SelectionTimeoutSec=30, got %d", cfg.SelectionTimeoutSec)
	}
	if cfg.JPEGQuality != 90 {
		t.Errorf("Expected fallback JPEGQuality=90, got %d", cfg.JPEGQuality)
	}
}

func TestAPIKeyFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	envKeyPath := filepath.Join(dir, "env-key")
	overridePath := filepath.Join(dir, "override-key")
	if err := os.WriteFile(envKeyPath, []byte("from-env-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(overridePath, []byte("from-override"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(APIKeyPathEnvVar, envKeyPath)
	t.Setenv("OPENROUTER_API_KEY", "from-env-var")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "from-env-file" {
		t.Errorf("Expected key file to win over env var, got %q", cfg.APIKey)
	}

	cfg, err = LoadWithOptions(LoadOptions{APIKeyPathOverride: overridePath})
	if err != nil {
		t.Fatalf("LoadWithOptions failed: %v", err)
	}
	if cfg.APIKey != "from-override" {
		t.Errorf("Expected override key, got %q", cfg.APIKey)
	}
	if cfg.APIKeyPath != overridePath {
		t.Errorf("Expected APIKeyPath=%q, got %q", overridePath, cfg.APIKeyPath)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{
		DefaultModeOverride: "full",
		IntervalOverride:    "3",
		SinkOverride:        "stdout",
	})
	if err != nil {
		t.Fatalf("LoadWithOptions failed: %v", err)
	}
	if cfg.DefaultMode != ModeFullScreen {
		t.Errorf("Expected mode %q, got %q", ModeFullScreen, cfg.DefaultMode)
	}
	if cfg.CaptureInterval != "3" {
		t.Errorf("Expected interval 3, got %q", cfg.CaptureInterval)
	}
	if cfg.Sink != SinkStdout {
		t.Errorf("Expected sink %q, got %q", SinkStdout, cfg.Sink)
	}
}

func TestResolveMode(t *testing.T) {
	tests := map[string]string{
		"":            ModeRegion,
		"region":      ModeRegion,
		"rect":        ModeRegion,
		"full":        ModeFullScreen,
		"Full-Screen": ModeFullScreen,
		"fullscreen":  ModeFullScreen,
	}
	for in, want := range tests {
		if got := ResolveMode(in); got != want {
			t.Errorf("ResolveMode(%q)=%q, want %q", in, got, want)
		}
	}
}
