package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
			t.Fatal("Expected error for invalid level")
		}
	})

	t.Run("FileOutput", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "anonymizer.log")
		log, err := New(Config{Level: "info", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		log.WithComponent("test").Info("hello")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), `"component":"test"`) {
			t.Errorf("Expected component field in file output, got %s", data)
		}
	})
}

func TestLogAnonymization(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithRequestID("req-1").LogAnonymization("masking", "en", map[string]int{"email": 2, "PERSON": 1}, 42, time.Millisecond)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["entities"] != int64(3) {
		t.Errorf("Expected 3 entities, got %v", fields["entities"])
	}
	if fields["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", fields["request_id"])
	}
	types, ok := fields["entity_types"].([]interface{})
	if !ok || len(types) != 2 || types[0] != "PERSON" {
		t.Errorf("Expected sorted entity types, got %v", fields["entity_types"])
	}
}
