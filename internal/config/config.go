package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"chat-widget/internal/integrations/chatapi"
	"chat-widget/internal/integrations/paramstore"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config is everything the entry points need. It is read once in main and
// passed down as plain values.
type Config struct {
	Addr        string `env:"WIDGET_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON     bool   `env:"LOG_JSON" envDefault:"false"`
	ParamPrefix string `env:"PARAM_PREFIX"`

	Storage StorageConfig `envPrefix:"STORAGE_"`
	ChatAPI ChatAPIConfig `envPrefix:"CHAT_API_"`
	Session SessionConfig
}

// StorageConfig selects the transcript backend. DynamoTTL of zero keeps
// history until the user clears it.
type StorageConfig struct {
	Backend     string        `env:"BACKEND" envDefault:"sqlite"`
	Key         string        `env:"KEY" envDefault:"chatHistory"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"data/widget.db"`
	DynamoTable string        `env:"DYNAMO_TABLE"`
	DynamoTTL   time.Duration `env:"DYNAMO_TTL" envDefault:"0s"`
}

// ChatAPIConfig describes the backend request/response shape. RequestField and
// ReplyPath override the preset when set.
type ChatAPIConfig struct {
	Preset       string            `env:"PRESET" envDefault:"openai"`
	BaseURL      string            `env:"BASE_URL" envDefault:"http://localhost:8000"`
	Path         string            `env:"PATH" envDefault:"/api/chat"`
	RequestField string            `env:"REQUEST_FIELD"`
	ReplyPath    string            `env:"REPLY_PATH"`
	Timeout      time.Duration     `env:"TIMEOUT" envDefault:"0s"`
	Headers      map[string]string `env:"HEADERS"`
}

type SessionConfig struct {
	WelcomeMessage string `env:"WELCOME_MESSAGE"`
	ApologyMessage string `env:"APOLOGY_MESSAGE"`
	TimeLayout     string `env:"TIME_LAYOUT" envDefault:"15:04"`
	RenderMode     string `env:"RENDER_MODE" envDefault:"basic"`
}

// Load reads the given dotenv files (".env" when none are named; missing files
// are skipped), then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return finish(cfg)
}

// Parse builds a Config from an explicit environment map instead of the
// process environment.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ChatAPI.applyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ChatAPIConfig) applyPreset() error {
	if c.RequestField != "" && c.ReplyPath != "" {
		return nil
	}
	p, ok := chatapi.Presets[strings.ToLower(strings.TrimSpace(c.Preset))]
	if !ok {
		return fmt.Errorf("config: unknown chat API preset %q", c.Preset)
	}
	if c.RequestField == "" {
		c.RequestField = p.RequestField
	}
	if c.ReplyPath == "" {
		c.ReplyPath = p.ReplyPath
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return errors.New("config: STORAGE_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(c.Storage.DynamoTable) == "" {
			return errors.New("config: STORAGE_DYNAMO_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("config: STORAGE_KEY must not be empty")
	}
	if c.Storage.DynamoTTL < 0 {
		return errors.New("config: STORAGE_DYNAMO_TTL must not be negative")
	}
	if strings.TrimSpace(c.ChatAPI.BaseURL) == "" {
		return errors.New("config: CHAT_API_BASE_URL must not be empty")
	}
	if strings.TrimSpace(c.ChatAPI.RequestField) == "" {
		return errors.New("config: CHAT_API_REQUEST_FIELD must not be empty")
	}
	if strings.TrimSpace(c.ChatAPI.ReplyPath) == "" {
		return errors.New("config: CHAT_API_REPLY_PATH must not be empty")
	}
	if c.ChatAPI.Timeout < 0 {
		return errors.New("config: CHAT_API_TIMEOUT must not be negative")
	}
	switch strings.ToLower(c.Session.RenderMode) {
	case "basic", "plain", "markdown":
	default:
		return fmt.Errorf("config: unknown render mode %q", c.Session.RenderMode)
	}
	return nil
}

// ApplyParams overlays values kept in Parameter Store under prefix, read in a
// single path query. Parameters that do not exist leave the current value
// untouched.
func ApplyParams(ctx context.Context, cfg *Config, src paramstore.PathGetter, prefix string) error {
	if cfg == nil {
		return errors.New("config: config must not be nil")
	}
	if src == nil {
		return errors.New("config: parameter source must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return errors.New("config: parameter prefix must not be empty")
	}

	values, err := src.GetParametersByPath(ctx, prefix)
	if err != nil {
		return fmt.Errorf("config: load parameters: %w", err)
	}

	overlays := []struct {
		name string
		dst  *string
	}{
		{"/chat_api/base_url", &cfg.ChatAPI.BaseURL},
		{"/chat_api/path", &cfg.ChatAPI.Path},
		{"/chat_api/request_field", &cfg.ChatAPI.RequestField},
		{"/chat_api/reply_path", &cfg.ChatAPI.ReplyPath},
		{"/session/welcome_message", &cfg.Session.WelcomeMessage},
		{"/session/apology_message", &cfg.Session.ApologyMessage},
	}
	for _, o := range overlays {
		if v, ok := values[prefix+o.name]; ok {
			*o.dst = strings.TrimSpace(v)
		}
	}
	return cfg.Validate()
}
