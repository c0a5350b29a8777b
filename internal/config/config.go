package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/kanflow/internal/domain"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Board    BoardConfig    `toml:"board"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type BoardConfig struct {
	Statuses []StatusConfig        `toml:"statuses"`
	Rules    DependencyRulesConfig `toml:"rules"`
}

type StatusConfig struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	WIPLimit int    `toml:"wip_limit"`
	Position int    `toml:"position"`
}

type DependencyRulesConfig struct {
	EnforcePredecessors bool `toml:"enforce_predecessors"`
	AllowParallelWork   bool `toml:"allow_parallel_work"`
}

type LoggingConfig struct {
	Level   string `toml:"level"`
	DevFile string `toml:"dev_file"`
}

func defaultStatuses() []StatusConfig {
	return []StatusConfig{
		{ID: "backlog", Name: "Backlog", WIPLimit: 0, Position: 0},
		{ID: "in-progress", Name: "In Progress", WIPLimit: 0, Position: 1},
		{ID: "review", Name: "Review", WIPLimit: 0, Position: 2},
		{ID: "done", Name: "Done", WIPLimit: 0, Position: 3},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Board: BoardConfig{
			Statuses: defaultStatuses(),
			Rules: DependencyRulesConfig{
				EnforcePredecessors: true,
				AllowParallelWork:   false,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if len(c.Board.Statuses) == 0 {
		return errors.New("board.statuses must include at least one status")
	}
	seenStatusID := map[string]struct{}{}
	for idx := range c.Board.Statuses {
		status := c.Board.Statuses[idx]
		status.ID = strings.TrimSpace(strings.ToLower(status.ID))
		status.Name = strings.TrimSpace(status.Name)
		if status.ID == "" {
			return fmt.Errorf("board.statuses[%d].id is required", idx)
		}
		if status.Name == "" {
			return fmt.Errorf("board.statuses[%d].name is required", idx)
		}
		if status.WIPLimit < 0 {
			return fmt.Errorf("board.statuses[%d].wip_limit must be >= 0", idx)
		}
		if status.Position < 0 {
			return fmt.Errorf("board.statuses[%d].position must be >= 0", idx)
		}
		if _, ok := seenStatusID[status.ID]; ok {
			return fmt.Errorf("board.statuses[%d].id is duplicated: %s", idx, status.ID)
		}
		seenStatusID[status.ID] = struct{}{}
		c.Board.Statuses[idx] = status
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// DomainBoard converts the configured column layout into the domain board.
// Columns are ordered by position, then by declaration order.
func (c Config) DomainBoard() domain.Board {
	statuses := make([]StatusConfig, len(c.Board.Statuses))
	copy(statuses, c.Board.Statuses)
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Position < statuses[j].Position
	})

	board := domain.Board{
		WIPLimits: map[string]int{},
		Rules: domain.DependencyRules{
			EnforcePredecessors: c.Board.Rules.EnforcePredecessors,
			AllowParallelWork:   c.Board.Rules.AllowParallelWork,
		},
	}
	for _, status := range statuses {
		id := strings.TrimSpace(strings.ToLower(status.ID))
		if id == "" {
			continue
		}
		board.Statuses = append(board.Statuses, id)
		if status.WIPLimit > 0 {
			board.WIPLimits[id] = status.WIPLimit
		}
	}
	return board
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Save validates and writes a config to its TOML file, creating parent
// directories as needed.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// UpsertStatus loads the config file, replaces or appends one board status by
// id, and writes the result back. Missing files start from the defaults.
func UpsertStatus(path string, defaults Config, status StatusConfig) error {
	cfg, err := Load(path, defaults)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(strings.ToLower(status.ID))
	if id == "" {
		return errors.New("status id is required")
	}
	status.ID = id

	replaced := false
	for i := range cfg.Board.Statuses {
		if strings.TrimSpace(strings.ToLower(cfg.Board.Statuses[i].ID)) == id {
			cfg.Board.Statuses[i] = status
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Board.Statuses = append(cfg.Board.Statuses, status)
	}
	return Save(path, cfg)
}
