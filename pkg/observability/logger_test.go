package observability_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"aeroncap/pkg/config"
	"aeroncap/pkg/observability"
)

func TestSetupLoggerStdout(t *testing.T) {
	logger, err := observability.SetupLogger(config.LogConfig{
		Level:       "debug",
		Format:      "console",
		Outputs:     []string{"stdout"},
		Development: true,
	})
	if err != nil {
		t.Fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("hello from stdout sink")
}

func TestSetupLoggerJSONFileWithRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "aeroncap.log")

	logger, err := observability.SetupLogger(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: []string{logFile},
		Rotation: config.RotationConfig{
			Enable:     true,
			Filename:   logFile,
			MaxSizeMB:  10,
			MaxBackups: 1,
			MaxAgeDays: 1,
		},
	})
	if err != nil {
		t.Fatalf("setup logger: %v", err)
	}

	logger.Warn("hello from rotated file sink")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	info, err := os.Stat(logFile)
	if err != nil {
		t.Fatalf("stat log file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected the file sink to have written something")
	}
}

func TestSetupLoggerDefaultsUnknownLevelToInfo(t *testing.T) {
	logger, err := observability.SetupLogger(config.LogConfig{
		Level:   "not-a-level",
		Outputs: []string{"stdout"},
	})
	if err != nil {
		t.Fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug logging to be filtered at the info default")
	}
}
