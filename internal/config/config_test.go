package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_MAX_ENTRIES", "")
	t.Setenv("STRUCTURED_HIGH_CONFIDENCE", "")
	t.Setenv("BATCH_MAX_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.CacheMaxEntries != 1000 {
		t.Fatalf("expected default cache size 1000, got %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheTTLMinutes != 1440 {
		t.Fatalf("expected default cache ttl 1440 minutes, got %d", cfg.CacheTTLMinutes)
	}
	if cfg.StructuredHighConfidence != 0.85 {
		t.Fatalf("expected default structured threshold 0.85, got %v", cfg.StructuredHighConfidence)
	}
	if cfg.BatchMaxSize != 8 {
		t.Fatalf("expected default batch size 8, got %d", cfg.BatchMaxSize)
	}
	if cfg.NATSSubject != "documents.extract" {
		t.Fatalf("expected default nats subject, got %q", cfg.NATSSubject)
	}
	if cfg.NATSFeedbackSubject != "feedback.recorded" {
		t.Fatalf("expected default feedback subject, got %q", cfg.NATSFeedbackSubject)
	}
	if cfg.DatabaseURL == "" {
		t.Fatalf("expected a default database url")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_MAX_ENTRIES", "250")
	t.Setenv("STRUCTURED_HIGH_CONFIDENCE", "0.7")
	t.Setenv("MODEL_REQUESTS_PER_SEC", "5.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.CacheMaxEntries != 250 {
		t.Fatalf("expected cache size 250, got %d", cfg.CacheMaxEntries)
	}
	if cfg.StructuredHighConfidence != 0.7 {
		t.Fatalf("expected structured threshold 0.7, got %v", cfg.StructuredHighConfidence)
	}
	if cfg.ModelRequestsPerSec != 5.5 {
		t.Fatalf("expected 5.5 requests/sec, got %v", cfg.ModelRequestsPerSec)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestLoadMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_MAX_ENTRIES", "a lot")
	t.Setenv("AGREEMENT_TOLERANCE", "tiny")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.CacheMaxEntries != 1000 {
		t.Fatalf("malformed int must fall back to default, got %d", cfg.CacheMaxEntries)
	}
	if cfg.AgreementTolerance != 0.02 {
		t.Fatalf("malformed float must fall back to default, got %v", cfg.AgreementTolerance)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := "api_port: \"9999\"\ncache_max_entries: 42\ndisagreement_floor: 0.25\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CACHE_MAX_ENTRIES", "250")
	t.Setenv("MODEL_NAME", "docvision-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	// The file overlay wins over environment values for keys it names.
	if cfg.APIPort != "9999" {
		t.Fatalf("expected overlay api port, got %q", cfg.APIPort)
	}
	if cfg.CacheMaxEntries != 42 {
		t.Fatalf("expected overlay cache size, got %d", cfg.CacheMaxEntries)
	}
	if cfg.DisagreementFloor != 0.25 {
		t.Fatalf("expected overlay disagreement floor, got %v", cfg.DisagreementFloor)
	}
	// Keys absent from the overlay keep their environment values.
	if cfg.ModelName != "docvision-test" {
		t.Fatalf("expected env model name preserved, got %q", cfg.ModelName)
	}
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
