package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orbitalcx/convoy/internal/config"
)

func TestWatcherDetectsConfigFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoy.yaml")
	if err := os.WriteFile(path, []byte("bind_addr: \"0.0.0.0:8080\"\n"), 0o644); err != nil {
		t.Fatalf("write initial config: %v", err)
	}

	w := config.NewWatcher(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	deadline := time.After(3 * time.Second)
	writeTick := time.NewTicker(50 * time.Millisecond)
	defer writeTick.Stop()

	write := func() {
		_ = os.WriteFile(path, []byte("bind_addr: \"0.0.0.0:9090\"\n"), 0o644)
	}
	write()

	for {
		select {
		case cfg := <-w.Events():
			if cfg.BindAddr != "0.0.0.0:9090" {
				t.Fatalf("expected reloaded config to reflect the new bind_addr, got %q", cfg.BindAddr)
			}
			return
		case <-writeTick.C:
			write()
		case <-deadline:
			t.Fatalf("timed out waiting for a config reload event")
		}
	}
}
