package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/fleetsync/internal/config"
	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/history"
	"github.com/JonMunkholm/fleetsync/internal/store/httpstore"
)

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Backend: "http", BaseURL: "http://localhost:3000/api", Timeout: time.Second},
		Import: config.ImportConfig{
			Workers:           2,
			MaxConcurrentRuns: 3,
			MaxWaitTime:       time.Second,
			MaxFileSize:       1 << 20,
			Timeout:           time.Minute,
		},
		History: config.HistoryConfig{
			Backend:       "sqlite",
			SQLitePath:    filepath.Join(t.TempDir(), "runs.db"),
			RetentionDays: 30,
			CheckInterval: time.Hour,
		},
	}
}

func TestNew_HTTPStoreWithSQLiteHistory(t *testing.T) {
	app, err := New(context.Background(), baseConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, ok := app.Store.(*httpstore.Store); !ok {
		t.Errorf("Store = %T, want *httpstore.Store", app.Store)
	}
	if _, ok := app.History.(*history.SQLite); !ok {
		t.Errorf("History = %T, want *history.SQLite", app.History)
	}
	if app.Importer == nil || app.Metrics == nil {
		t.Error("importer and metrics must be set")
	}
	if got := app.Limiter.MaxConcurrent(); got != 3 {
		t.Errorf("Limiter.MaxConcurrent() = %d, want 3", got)
	}
}

func TestNew_MemoryHistory(t *testing.T) {
	cfg := baseConfig(t)
	cfg.History.Backend = "none"
	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if _, ok := app.History.(*history.Memory); !ok {
		t.Errorf("History = %T, want *history.Memory", app.History)
	}
}

func TestNew_FeedsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	data := `feeds:
  - info: {key: students-app-test, group: Fees}
    layout:
      kind: student
      headerOffset: 1
      columns:
        - {index: 0, field: name, type: name}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := baseConfig(t)
	cfg.Import.FeedsFile = path

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if _, ok := core.Get("students-app-test"); !ok {
		t.Error("feed from file not registered")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing feeds file",
			mutate:  func(c *config.Config) { c.Import.FeedsFile = "/nonexistent/feeds.yaml" },
			wantErr: "load feeds file",
		},
		{
			name:    "bad store url",
			mutate:  func(c *config.Config) { c.Store.BaseURL = "ftp://example.com" },
			wantErr: "scheme",
		},
		{
			name: "bad database url",
			mutate: func(c *config.Config) {
				c.Store.Backend = "postgres"
				c.Database.URL = "://nope"
			},
			wantErr: "parse database URL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStartRetention_Stops(t *testing.T) {
	cfg := baseConfig(t)
	cfg.History.Backend = "none"
	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.StartRetention(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retention did not stop")
	}
}
