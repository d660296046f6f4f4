package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNew tests logger creation from config-file knobs
func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		encoding string
		wantErr  bool
		enabled  zapcore.Level
	}{
		{name: "json info", level: "info", encoding: "json", enabled: zapcore.InfoLevel},
		{name: "console debug", level: "debug", encoding: "console", enabled: zapcore.DebugLevel},
		{name: "defaults", enabled: zapcore.InfoLevel},
		{name: "bad level", level: "verbose", encoding: "json", wantErr: true},
		{name: "bad encoding", level: "info", encoding: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.encoding)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("Expected level %v to be enabled", tt.enabled)
			}
			if tt.enabled > zapcore.DebugLevel && logger.Core().Enabled(zapcore.DebugLevel) {
				t.Error("Debug should be disabled")
			}
		})
	}
}

// TestNewWithConfigNil tests that a nil config is rejected
func TestNewWithConfigNil(t *testing.T) {
	if _, err := NewWithConfig(nil); err == nil {
		t.Fatal("Expected error for nil config")
	}
}

// TestContextCarriage tests storing and retrieving a logger from context
func TestContextCarriage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithLogger(context.Background(), base)
	FromContext(ctx).Info("from context")

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}

	// Missing logger and nil context both fall back to a no-op logger
	FromContext(context.Background()).Info("dropped")
	//nolint:staticcheck // exercising the nil guard
	FromContext(nil).Info("dropped")
	if logs.Len() != 1 {
		t.Errorf("Expected no-op fallback, got %d entries", logs.Len())
	}
}

// TestWithComponent tests the component field
func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithComponent(zap.New(core), "cache").Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "cache" {
		t.Errorf("Expected component=cache, got %v", got)
	}
}
