package main

import (
	"testing"

	"github.com/raaihank/text-anonymizer/internal/config"
)

func TestApplyLogLevel(t *testing.T) {
	t.Run("UnsetKeepsConfig", func(t *testing.T) {
		cfg := config.GetDefaults()
		cfg.Logging.Level = "error"
		if err := applyLogLevel(cfg, ""); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if cfg.Logging.Level != "error" {
			t.Errorf("Expected configured level to survive, got %s", cfg.Logging.Level)
		}
	})

	t.Run("FlagOverrides", func(t *testing.T) {
		cfg := config.GetDefaults()
		if err := applyLogLevel(cfg, "debug"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Expected debug, got %s", cfg.Logging.Level)
		}
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		if err := applyLogLevel(config.GetDefaults(), "trace"); err == nil {
			t.Error("Expected error for invalid level")
		}
	})
}
