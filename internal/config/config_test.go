package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/kanflow.db")
	if cfg.Database.Path != "/tmp/kanflow.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if len(cfg.Board.Statuses) != 4 {
		t.Fatalf("expected 4 default statuses, got %d", len(cfg.Board.Statuses))
	}
	if !cfg.Board.Rules.EnforcePredecessors {
		t.Fatal("expected predecessor enforcement enabled by default")
	}
	if cfg.Board.Rules.AllowParallelWork {
		t.Fatal("expected parallel work disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/kanflow.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/kanflow.db"

[board.rules]
enforce_predecessors = false

[[board.statuses]]
id = "todo"
name = "To Do"
position = 0

[[board.statuses]]
id = "doing"
name = "Doing"
wip_limit = 2
position = 1

[[board.statuses]]
id = "done"
name = "Done"
position = 2

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/kanflow.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Board.Rules.EnforcePredecessors {
		t.Fatal("expected enforcement disabled by the file")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging level %q", cfg.Logging.Level)
	}

	board := cfg.DomainBoard()
	if len(board.Statuses) != 3 || board.Statuses[0] != "todo" || board.Statuses[2] != "done" {
		t.Fatalf("unexpected board statuses %v", board.Statuses)
	}
	if board.WIPLimit("doing") != 2 {
		t.Fatalf("unexpected wip limit %d", board.WIPLimit("doing"))
	}
	if board.WIPLimit("todo") != 0 {
		t.Fatal("unlimited column must report 0")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = " " }},
		{"no statuses", func(c *Config) { c.Board.Statuses = nil }},
		{"duplicate status id", func(c *Config) {
			c.Board.Statuses = append(c.Board.Statuses, StatusConfig{ID: "backlog", Name: "Again"})
		}},
		{"negative wip limit", func(c *Config) { c.Board.Statuses[0].WIPLimit = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("/tmp/kanflow.db")
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDomainBoardOrdersByPosition(t *testing.T) {
	cfg := Default("/tmp/kanflow.db")
	cfg.Board.Statuses = []StatusConfig{
		{ID: "done", Name: "Done", Position: 2},
		{ID: "backlog", Name: "Backlog", Position: 0},
		{ID: "in-progress", Name: "In Progress", Position: 1},
	}
	board := cfg.DomainBoard()
	want := []string{"backlog", "in-progress", "done"}
	for i, id := range want {
		if board.Statuses[i] != id {
			t.Fatalf("statuses = %v, want %v", board.Statuses, want)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kanflow.toml")
	want := Default("/tmp/kanflow.db")
	want.Logging.Level = "debug"

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path, Default("/tmp/other.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Database.Path != want.Database.Path {
		t.Fatalf("unexpected db path %q", got.Database.Path)
	}
	if got.Logging.Level != "debug" {
		t.Fatalf("unexpected logging level %q", got.Logging.Level)
	}
	if len(got.Board.Statuses) != len(want.Board.Statuses) {
		t.Fatalf("unexpected status count %d", len(got.Board.Statuses))
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default("/tmp/kanflow.db")
	cfg.Logging.Level = "verbose"
	if err := Save(filepath.Join(t.TempDir(), "kanflow.toml"), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestUpsertStatusAppendsAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanflow.toml")
	defaults := Default("/tmp/kanflow.db")

	err := UpsertStatus(path, defaults, StatusConfig{ID: "Blocked", Name: "Blocked", Position: 4})
	if err != nil {
		t.Fatalf("UpsertStatus(append) error = %v", err)
	}
	cfg, err := Load(path, defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Board.Statuses) != 5 {
		t.Fatalf("expected appended status, got %d statuses", len(cfg.Board.Statuses))
	}
	if cfg.Board.Statuses[4].ID != "blocked" {
		t.Fatalf("expected lowercased id, got %q", cfg.Board.Statuses[4].ID)
	}

	err = UpsertStatus(path, defaults, StatusConfig{ID: "blocked", Name: "Blocked", WIPLimit: 2, Position: 4})
	if err != nil {
		t.Fatalf("UpsertStatus(replace) error = %v", err)
	}
	cfg, err = Load(path, defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Board.Statuses) != 5 {
		t.Fatalf("expected in-place replacement, got %d statuses", len(cfg.Board.Statuses))
	}
	if cfg.Board.Statuses[4].WIPLimit != 2 {
		t.Fatalf("expected updated wip limit, got %d", cfg.Board.Statuses[4].WIPLimit)
	}
}
