package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Loop          LoopConfig          `toml:"loop"`
	Council       CouncilConfig       `toml:"council"`
	Backoff       BackoffConfig       `toml:"backoff"`
	Executor      ExecutorConfig      `toml:"executor"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Schedule      ScheduleConfig      `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ProjectRoot  string `toml:"project_root"`
	WorktreeDir  string `toml:"worktree_dir"`
	StateDir     string `toml:"state_dir"`
	DatabasePath string `toml:"database_path"`
	PRDPath      string `toml:"prd_path"`
	TestResults  string `toml:"test_results"`
}

// LoopConfig holds iteration-loop settings
type LoopConfig struct {
	MaxIterations     int    `toml:"max_iterations"`
	MaxRetries        int    `toml:"max_retries"`
	StagnationLimit   int    `toml:"stagnation_limit"`
	Perpetual         bool   `toml:"perpetual"`
	CompletionPromise string `toml:"completion_promise"`
	ParallelStreams   int    `toml:"parallel_streams"`
	MaxConcurrent     int    `toml:"max_concurrent"`
	TaskRetryCeiling  int    `toml:"task_retry_ceiling"`
}

// CouncilConfig holds completion-council settings
type CouncilConfig struct {
	Size             int    `toml:"size"`
	CheckInterval    int    `toml:"check_interval"`
	MinIterations    int    `toml:"min_iterations"`
	BlockingSeverity string `toml:"blocking_severity"`
}

// BackoffConfig holds retry-wait settings
type BackoffConfig struct {
	BaseWaitSeconds int `toml:"base_wait_seconds"`
	MaxWaitSeconds  int `toml:"max_wait_seconds"`
	ProviderRPM     int `toml:"provider_rpm"`
}

// ExecutorConfig holds agent-executor settings
type ExecutorConfig struct {
	Provider string `toml:"provider"`
	Binary   string `toml:"binary"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds status-server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ScheduleConfig holds cron run windows
type ScheduleConfig struct {
	Windows []WindowConfig `toml:"windows"`
}

// WindowConfig is one cron run window
type WindowConfig struct {
	Cron            string `toml:"cron"`
	DurationMinutes int    `toml:"duration_minutes"`
}

// Duration returns the window duration.
func (w WindowConfig) Duration() time.Duration {
	return time.Duration(w.DurationMinutes) * time.Minute
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ProjectRoot:  "",
			WorktreeDir:  filepath.Join(home, ".claude-loop", "worktrees"),
			StateDir:     ".claude-loop",
			DatabasePath: filepath.Join(home, ".claude-loop", "history.db"),
			PRDPath:      "PRD.md",
			TestResults:  ".claude-loop/test-results.txt",
		},
		Loop: LoopConfig{
			MaxIterations:    100,
			MaxRetries:       10,
			StagnationLimit:  3,
			ParallelStreams:  1,
			MaxConcurrent:    3,
			TaskRetryCeiling: 3,
		},
		Council: CouncilConfig{
			Size:             3,
			CheckInterval:    5,
			MinIterations:    3,
			BlockingSeverity: "low",
		},
		Backoff: BackoffConfig{
			BaseWaitSeconds: 30,
			MaxWaitSeconds:  900,
		},
		Executor: ExecutorConfig{
			Provider: "claude",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8484,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.General.WorktreeDir = ExpandPath(cfg.General.WorktreeDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.PRDPath = ExpandPath(cfg.General.PRDPath)
	cfg.General.TestResults = ExpandPath(cfg.General.TestResults)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-loop", "config.toml")
}

// LocalConfigName is the per-project config file searched for in the current
// directory and its parents.
const LocalConfigName = ".claude-loop.toml"

// FindLocalConfig walks up from the working directory looking for a
// per-project config file. Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads an explicit path when given, else a
// per-project config, else the user-level default path.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}
