// Package config loads and validates the provider configuration document.
//
// Configuration lives in config/providers.yaml with two sections: llm
// (required) and image (optional). API keys may be environment references
// of the form ${NAME}; they resolve at load time and the literal secret is
// never written back to disk. Validation is total: every violation is
// collected and reported at once, before any work starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LLMMode selects the auth/transport behavior of the LLM client.
type LLMMode string

const (
	// LLMModeDirect authenticates with the native API-key header against
	// the canonical provider endpoint.
	LLMModeDirect LLMMode = "direct"
	// LLMModeProxy authenticates with a bearer token against a
	// user-supplied endpoint, request/response shape passed through.
	LLMModeProxy LLMMode = "proxy"
)

// ImageMode selects the wire shape of the image client.
type ImageMode string

const (
	// ImageModeNative issues a typed models-API request; no endpoint needed.
	ImageModeNative ImageMode = "native"
	// ImageModeProxy issues a chat-completions-shaped request to a
	// user-supplied endpoint.
	ImageModeProxy ImageMode = "proxy"
)

// DefaultLLMBaseURL is the canonical endpoint used in direct mode.
const DefaultLLMBaseURL = "https://api.anthropic.com"

// LLM holds the language-model provider settings.
type LLM struct {
	Mode           LLMMode `mapstructure:"mode"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Image holds the image-generation provider settings.
type Image struct {
	Mode           ImageMode `mapstructure:"mode"`
	APIKey         string    `mapstructure:"api_key"`
	Endpoint       string    `mapstructure:"endpoint"`
	Model          string    `mapstructure:"model"`
	TimeoutSeconds int       `mapstructure:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (i Image) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// Configured reports whether an image section is present at all.
func (i Image) Configured() bool {
	return i.Mode != ""
}

// Social holds optional credentials for authenticated social platforms.
type Social struct {
	MicroblogAPIKey string `mapstructure:"microblog_api_key"`
}

// Config is the validated provider configuration for a run.
type Config struct {
	LLM    LLM    `mapstructure:"llm"`
	Image  Image  `mapstructure:"image"`
	Social Social `mapstructure:"social"`

	// Path the document was loaded from, for error messages.
	path string
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// ValidationError aggregates every configuration violation found during
// load so the operator fixes them in one pass.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration invalid (%d problems):\n- %s",
		len(e.Violations), strings.Join(e.Violations, "\n- "))
}

var envRefPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// placeholders are values that indicate an unfilled template, treated the
// same as a missing value.
var placeholders = []string{
	"your-api-key", "your-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME", "changeme",
}

// Load reads, resolves, and validates the configuration document at path.
// When the file is absent and legacy environment variables are present, a
// one-shot migration writes the file first (see migrate.go).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		migrated, merr := MigrateFromEnv(path)
		if merr != nil {
			return nil, merr
		}
		if !migrated {
			return nil, &ValidationError{Violations: []string{
				fmt.Sprintf("configuration file %s not found and no legacy environment variables to migrate", path),
			}}
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("llm.mode", string(LLMModeDirect))
	v.SetDefault("llm.timeout_seconds", 300)
	v.SetDefault("image.timeout_seconds", 120)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	var violations []string
	cfg.LLM.APIKey = resolveRef("llm.api_key", cfg.LLM.APIKey, &violations)
	cfg.Image.APIKey = resolveRef("image.api_key", cfg.Image.APIKey, &violations)
	cfg.Social.MicroblogAPIKey = resolveRef("social.microblog_api_key", cfg.Social.MicroblogAPIKey, &violations)

	violations = append(violations, cfg.validate()...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return cfg, nil
}

// resolveRef expands a ${NAME} reference from the process environment.
// An unresolvable reference is a validation violation, not a silent empty.
func resolveRef(field, value string, violations *[]string) string {
	m := envRefPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return value
	}
	resolved, ok := os.LookupEnv(m[1])
	if !ok || resolved == "" {
		*violations = append(*violations, fmt.Sprintf("%s: environment variable %s referenced but not set", field, m[1]))
		return ""
	}
	return resolved
}

func (c *Config) validate() []string {
	var v []string

	switch c.LLM.Mode {
	case LLMModeDirect, LLMModeProxy:
	default:
		v = append(v, fmt.Sprintf("llm.mode: unknown mode %q (want direct or proxy)", c.LLM.Mode))
	}
	if c.LLM.APIKey == "" {
		v = append(v, "llm.api_key: missing")
	} else if isPlaceholder(c.LLM.APIKey) {
		v = append(v, fmt.Sprintf("llm.api_key: placeholder value %q", c.LLM.APIKey))
	}
	if c.LLM.Model == "" {
		v = append(v, "llm.model: missing")
	}
	if c.LLM.Mode == LLMModeProxy && c.LLM.BaseURL == "" {
		v = append(v, "llm.base_url: required in proxy mode")
	}
	if strings.HasSuffix(strings.TrimRight(c.LLM.BaseURL, "/"), "/v1") {
		v = append(v, fmt.Sprintf("llm.base_url: must not end in /v1 (the client appends API paths itself): %s", c.LLM.BaseURL))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		v = append(v, "llm.timeout_seconds: must be positive")
	}

	if c.Image.Configured() {
		switch c.Image.Mode {
		case ImageModeNative, ImageModeProxy:
		default:
			v = append(v, fmt.Sprintf("image.mode: unknown mode %q (want native or proxy)", c.Image.Mode))
		}
		if c.Image.APIKey == "" {
			v = append(v, "image.api_key: missing")
		} else if isPlaceholder(c.Image.APIKey) {
			v = append(v, fmt.Sprintf("image.api_key: placeholder value %q", c.Image.APIKey))
		}
		if c.Image.Mode == ImageModeProxy && c.Image.Endpoint == "" {
			v = append(v, "image.endpoint: required in proxy mode")
		}
		if c.Image.Model == "" {
			v = append(v, "image.model: missing")
		}
	}

	return v
}

func isPlaceholder(value string) bool {
	for _, p := range placeholders {
		if value == p {
			return true
		}
	}
	return false
}

// DefaultPath is where the provider document lives relative to the working
// directory.
func DefaultPath() string {
	return filepath.Join("config", "providers.yaml")
}
