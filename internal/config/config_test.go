package config

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(testLogger())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.IntentClassifierMode != "strict" {
		t.Fatalf("expected strict mode by default, got %q", cfg.IntentClassifierMode)
	}
	if cfg.RateLimitWindow() != time.Minute || cfg.RateLimitMaxClients != 10000 {
		t.Fatalf("unexpected rate limit defaults: %v %d", cfg.RateLimitWindow(), cfg.RateLimitMaxClients)
	}
	if cfg.PendingStaleAfter != 24*time.Hour {
		t.Fatalf("expected 24h stale threshold, got %v", cfg.PendingStaleAfter)
	}
	if cfg.MaxTransferAmount.String() != "1000000" {
		t.Fatalf("expected default ceiling, got %s", cfg.MaxTransferAmount)
	}
}

func TestLoadConfig_CoercesInvalidLimits(t *testing.T) {
	resetViper(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RATE_LIMIT_MAX_CLIENTS", "-5")
	t.Setenv("MAX_TOOL_ROUNDS", "0")
	t.Setenv("MAX_TRANSFER_AMOUNT", "lots")
	t.Setenv("INTENT_CLASSIFIER_MODE", "LOOSE")

	cfg, err := LoadConfig(testLogger())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RateLimitMaxClients != 10000 {
		t.Fatalf("expected max clients coerced to default, got %d", cfg.RateLimitMaxClients)
	}
	if cfg.MaxToolRounds != 8 {
		t.Fatalf("expected tool rounds coerced to default, got %d", cfg.MaxToolRounds)
	}
	if cfg.MaxTransferAmount.String() != "1000000" {
		t.Fatalf("expected default ceiling, got %s", cfg.MaxTransferAmount)
	}
	if cfg.IntentClassifierMode != "loose" {
		t.Fatalf("expected loose mode, got %q", cfg.IntentClassifierMode)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"unknown mode", map[string]string{"STORE_DRIVER": "memory", "INTENT_CLASSIFIER_MODE": "permissive"}, "INTENT_CLASSIFIER_MODE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(testLogger())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://app.example , ,http://localhost:3000", LogLevel: "debug"}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://app.example" {
		t.Fatalf("unexpected origins %v", origins)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.SlogLevel())
	}
	cfg.LogLevel = "chatty"
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info fallback, got %v", cfg.SlogLevel())
	}
}
