// ABOUTME: Configuration loading and parsing for seer-gateway
// ABOUTME: Environment-first settings with an optional YAML file, env expansion, and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete seer-gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Files     FilesConfig     `yaml:"files"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chat      ChatConfig      `yaml:"chat"`
	Think     ThinkConfig     `yaml:"think"`
	LangSmith LangSmithConfig `yaml:"langsmith"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Warnings collected while applying environment overrides. The caller
	// logs these once logging is configured.
	Warnings []string `yaml:"-"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // Serve TLS with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds the audit database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig controls MCP session enforcement.
type SessionConfig struct {
	// Require rejects requests without a sessionId. When false the server
	// runs leniently and adopts or auto-creates sessions.
	Require bool `yaml:"require"`
}

// FilesConfig holds the sandbox root for the read_file tool.
type FilesConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// OpenAIConfig holds provider connection and polling configuration.
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	PollDelay          time.Duration `yaml:"-"`
	MaxPolls           int           `yaml:"max_polls"`
	PollMaxConcurrency int           `yaml:"poll_max_concurrency"`

	// Raw string value for YAML unmarshaling
	PollDelayRaw string `yaml:"poll_delay"`
}

// ChatConfig bounds the chat orchestration loop.
type ChatConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// ThinkConfig holds the upstream think-tool MCP server configuration.
type ThinkConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"-"`
	RetryLimit int           `yaml:"retry_limit"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LangSmithConfig holds LangSmith tracing configuration.
type LangSmithConfig struct {
	Enabled bool   `yaml:"enabled"`
	Project string `yaml:"project"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirrored from the container deployment. The gateway starts with
// no config file and no environment beyond OPENAI_API_KEY.
const (
	defaultHTTPAddr        = "0.0.0.0:8000"
	defaultDatabasePath    = ":memory:"
	defaultFilesBaseDir    = "/app"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultPollDelay       = 2 * time.Second
	defaultMaxPolls        = 30
	defaultPollConcurrency = 8
	defaultMaxTurns        = 15
	defaultThinkTimeout    = 2 * time.Second
	defaultLangSmithURL    = "https://api.smith.langchain.com"
)

// Default returns a Config populated with defaults. Sessions are required
// unless explicitly relaxed.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: defaultHTTPAddr},
		Database: DatabaseConfig{Path: defaultDatabasePath},
		Session:  SessionConfig{Require: true},
		Files:    FilesConfig{BaseDir: defaultFilesBaseDir},
		OpenAI: OpenAIConfig{
			BaseURL:            defaultOpenAIBaseURL,
			PollDelay:          defaultPollDelay,
			MaxPolls:           defaultMaxPolls,
			PollMaxConcurrency: defaultPollConcurrency,
		},
		Chat:      ChatConfig{MaxTurns: defaultMaxTurns},
		Think:     ThinkConfig{Timeout: defaultThinkTimeout},
		LangSmith: LangSmithConfig{BaseURL: defaultLangSmithURL},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order. Pass an empty path to skip
// the file entirely. Environment variables in the format ${VAR_NAME} are
// expanded inside the file before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expandedData := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}

		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Think requires a target URL; without one the tool stays disabled.
	if strings.TrimSpace(cfg.Think.URL) == "" {
		cfg.Think.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overrides configuration from environment variables. Variables the
// external contract tolerates bad values for (the think-tool knobs) fall back
// to defaults with a recorded warning; everything else fails hard.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		c.Server.HTTPAddr = "0.0.0.0:" + v
	}
	if v, ok := os.LookupEnv("SEER_DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := os.LookupEnv("MCP_REQUIRE_SESSION"); ok {
		c.Session.Require = truthy(v)
	}

	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.OpenAI.APIKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_BASE_URL"); ok && v != "" {
		c.OpenAI.BaseURL = v
	}
	if v, ok := os.LookupEnv("POLL_DELAY"); ok && v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("parsing POLL_DELAY %q: %w", v, err)
		}
		c.OpenAI.PollDelay = d
	}
	if v, ok := os.LookupEnv("MAX_POLLS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAX_POLLS %q: %w", v, err)
		}
		c.OpenAI.MaxPolls = n
	}
	if v, ok := os.LookupEnv("RESPONSES_POLL_MAX_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing RESPONSES_POLL_MAX_CONCURRENCY %q: %w", v, err)
		}
		c.OpenAI.PollMaxConcurrency = n
	}
	if v, ok := os.LookupEnv("MAX_TURNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAX_TURNS %q: %w", v, err)
		}
		c.Chat.MaxTurns = n
	}

	if v, ok := os.LookupEnv("THINK_TOOL_ENABLED"); ok {
		c.Think.Enabled = truthy(v)
	}
	if v, ok := os.LookupEnv("THINK_TOOL_URL"); ok {
		c.Think.URL = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("THINK_TOOL_TIMEOUT_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("invalid THINK_TOOL_TIMEOUT_MS %q, using default %s", v, defaultThinkTimeout))
			c.Think.Timeout = defaultThinkTimeout
		} else {
			c.Think.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("THINK_TOOL_RETRY_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("invalid THINK_TOOL_RETRY_LIMIT %q, using default 0", v))
			n = 0
		}
		if n < 0 {
			n = 0
		}
		c.Think.RetryLimit = n
	}

	if v, ok := os.LookupEnv("LANGSMITH_TRACING"); ok {
		c.LangSmith.Enabled = truthy(v)
	}
	if v, ok := os.LookupEnv("LANGSMITH_PROJECT"); ok && v != "" {
		c.LangSmith.Project = v
	}
	if v, ok := os.LookupEnv("LANGSMITH_API_KEY"); ok {
		c.LangSmith.APIKey = v
	}
	if v, ok := os.LookupEnv("LANGSMITH_ENDPOINT"); ok && v != "" {
		c.LangSmith.BaseURL = v
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		c.Logging.Format = v
	}

	return nil
}

// truthy reports whether an environment value means "on".
// Accepted spellings: 1, true, yes, on (case-insensitive).
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parseDelay accepts either a Go duration string ("2s", "500ms") or a bare
// number of seconds ("2", "0.5").
func parseDelay(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration or number of seconds")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Files.BaseDir == "" {
		return fmt.Errorf("files.base_dir is required")
	}

	if c.OpenAI.MaxPolls < 1 {
		return fmt.Errorf("openai.max_polls must be at least 1")
	}

	if c.OpenAI.PollMaxConcurrency < 1 {
		return fmt.Errorf("openai.poll_max_concurrency must be at least 1")
	}

	if c.OpenAI.PollDelay < 0 {
		return fmt.Errorf("openai.poll_delay must not be negative")
	}

	if c.Chat.MaxTurns < 1 {
		return fmt.Errorf("chat.max_turns must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.OpenAI.PollDelayRaw != "" {
		cfg.OpenAI.PollDelay, err = time.ParseDuration(cfg.OpenAI.PollDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_delay %q: %w", cfg.OpenAI.PollDelayRaw, err)
		}
	}

	if cfg.Think.TimeoutRaw != "" {
		cfg.Think.Timeout, err = time.ParseDuration(cfg.Think.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Think.TimeoutRaw, err)
		}
	}

	return nil
}
