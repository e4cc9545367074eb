// Package config provides configuration loading and the static engine registry.
//
// Configuration is split in two:
//
//   - Config: deployment settings loaded from a YAML file plus environment
//     overrides (paths, listen address, phone numbers, auth).
//   - Engine registry and constants: hardcoded algorithm parameters that
//     users should not modify (provider table, compaction thresholds).
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"maestro/pkg/logx"
)

// Provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Conversation constants. Hardcoded on purpose: these are algorithm
// parameters, not deployment settings.
const (
	// CompactionThreshold is the context usage fraction that triggers compaction.
	CompactionThreshold = 0.65
	// KeepRecentMessages is how many recent messages survive a compaction.
	KeepRecentMessages = 20
	// CharsPerToken is the estimation divisor for context accounting.
	CharsPerToken = 4
)

// Heartbeat constants.
const (
	ScheduleLookaheadDays       = 2
	BoredomAdventurousThreshold = 3
	BoredomDeepDiveThreshold    = 5
)

// EngineInfo describes one selectable LLM engine.
type EngineInfo struct {
	Provider      string // anthropic, openai, google
	Model         string // provider model identifier
	ContextWindow int    // context window in tokens
	Display       string // human-readable name for user-facing messages
}

// Engines is the static registry of selectable engines.
//
//nolint:gochecknoglobals // Intentional global for static engine registry
var Engines = map[string]EngineInfo{
	"opus": {
		Provider:      ProviderAnthropic,
		Model:         "claude-opus-4-6",
		ContextWindow: 1000000,
		Display:       "Opus 4.6",
	},
	"gemini": {
		Provider:      ProviderGoogle,
		Model:         "gemini-3-pro-preview",
		ContextWindow: 1000000,
		Display:       "Gemini 3 Pro",
	},
	"gemini-flash": {
		Provider:      ProviderGoogle,
		Model:         "gemini-3-flash-preview",
		ContextWindow: 1000000,
		Display:       "Gemini 3 Flash",
	},
	"gpt": {
		Provider:      ProviderOpenAI,
		Model:         "gpt-5.2",
		ContextWindow: 128000,
		Display:       "GPT-5.2",
	},
}

// DefaultEngine is used when conversation state carries no engine.
const DefaultEngine = "gpt"

// EngineNames returns the registry keys in sorted order.
func EngineNames() []string {
	names := make([]string, 0, len(Engines))
	for name := range Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WebAuthConfig guards the debug endpoints when set.
type WebAuthConfig struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"` // bcrypt hash
}

// Config holds deployment settings.
type Config struct {
	ProjectName  string `yaml:"project_name"`  // knowledge store project to load
	KnowledgeDir string `yaml:"knowledge_dir"` // root of knowledge_store/
	IdentityDir  string `yaml:"identity_dir"`  // soul/tone/tools/discipline files
	DataDir      string `yaml:"data_dir"`      // sqlite database and caches

	ListenAddr string `yaml:"listen_addr"` // HTTP listen address

	SuperPhone    string `yaml:"super_phone"`     // the one human we talk to
	MaestroPhone  string `yaml:"maestro_phone"`   // our own outbound number
	SMSGatewayURL string `yaml:"sms_gateway_url"` // outbound webhook; empty = log only

	PrometheusURL string `yaml:"prometheus_url"` // activity stats source; empty = disabled

	Engine string `yaml:"engine"` // initial engine, defaults to DefaultEngine

	WebAuth WebAuthConfig `yaml:"web_auth"`
}

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	mu     sync.RWMutex
	logger = logx.NewLogger("config")
)

// Load reads the YAML config file, applies environment overrides, and
// installs the result as the process config. A missing file is not an
// error: defaults plus environment carry a dev setup.
func Load(path string) (*Config, error) {
	// .env is optional and only fills in unset variables.
	_ = godotenv.Load()

	cfg := &Config{
		KnowledgeDir: "knowledge_store",
		IdentityDir:  "identity",
		DataDir:      "data",
		ListenAddr:   ":8080",
		Engine:       DefaultEngine,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			logger.Warn("Config file %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	config = cfg
	mu.Unlock()

	logger.Info("Config loaded: project=%s engine=%s listen=%s", cfg.ProjectName, cfg.Engine, cfg.ListenAddr)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"MAESTRO_PROJECT":      &cfg.ProjectName,
		"MAESTRO_KNOWLEDGE":    &cfg.KnowledgeDir,
		"MAESTRO_IDENTITY":     &cfg.IdentityDir,
		"MAESTRO_DATA":         &cfg.DataDir,
		"MAESTRO_LISTEN":       &cfg.ListenAddr,
		"SUPER_PHONE":          &cfg.SuperPhone,
		"MAESTRO_PHONE":        &cfg.MaestroPhone,
		"SMS_GATEWAY_URL":      &cfg.SMSGatewayURL,
		"MAESTRO_PROMETHEUS":   &cfg.PrometheusURL,
		"MAESTRO_ENGINE":       &cfg.Engine,
		"MAESTRO_WEB_USER":     &cfg.WebAuth.User,
		"MAESTRO_WEB_PASSWORD": &cfg.WebAuth.PasswordHash,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.ProjectName == "" {
		return fmt.Errorf("project_name is required (or set MAESTRO_PROJECT)")
	}
	if _, ok := Engines[c.Engine]; !ok {
		return fmt.Errorf("unknown engine %q, available: %s", c.Engine, strings.Join(EngineNames(), ", "))
	}
	return nil
}

// Get returns the loaded config. Panics before Load: config access
// before startup is a programming error, not a runtime condition.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		panic("config.Load must be called before config.Get")
	}
	return config
}

// Set installs a config directly. Tests use this to skip file loading.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}
