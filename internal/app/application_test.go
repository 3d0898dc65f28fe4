package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tutorhub/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 18973
	return cfg
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.ValidTypes = nil

	if _, err := NewApplication(cfg); err == nil {
		t.Error("Invalid config should fail application construction")
	}
}

func TestApplicationStartReportsBindError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = first.Stop(stopCtx)
	}()

	// Same port: the second Start must fail synchronously, not report
	// success and die later.
	second, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = second.Stop(stopCtx)
	}()

	if err := second.Start(ctx); err == nil {
		t.Error("Start should surface the bind failure")
	}
}

func TestApplicationStartStop(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if application.Addr() != "127.0.0.1:18973" {
		t.Errorf("Unexpected listen address %s", application.Addr())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Stop(shutdownCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
