package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerConfigLevels(t *testing.T) {
	if got := NewLoggerConfig(false).Level.Level(); got != zapcore.InfoLevel {
		t.Errorf("default level = %v", got)
	}
	if got := NewLoggerConfig(true).Level.Level(); got != zapcore.DebugLevel {
		t.Errorf("debug level = %v", got)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("mbsim", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug logger drops debug entries")
	}
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("projection failed", "step", 3)
	NewNop().Infow("dropped")

	entries := logs.FilterMessage("projection failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if got := entries[0].ContextMap()["step"]; got != int64(3) {
		t.Errorf("step field = %v (%T)", got, got)
	}
}
