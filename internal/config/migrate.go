package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dailybrief/internal/logger"
)

// Legacy environment variable names honored only during migration.
const (
	envLLMEndpoint  = "LLM_ENDPOINT"
	envLLMAPIKey    = "LLM_API_KEY"
	envLLMModel     = "LLM_MODEL"
	envMicroblogKey = "MICROBLOG_API_KEY"
)

// migratedDoc mirrors the providers.yaml layout for the migration writer.
// Secret fields carry ${NAME} references, never literal values.
type migratedDoc struct {
	LLM struct {
		Mode           string `yaml:"mode"`
		APIKey         string `yaml:"api_key"`
		BaseURL        string `yaml:"base_url,omitempty"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Social *struct {
		MicroblogAPIKey string `yaml:"microblog_api_key"`
	} `yaml:"social,omitempty"`
}

// MigrateFromEnv performs the one-shot migration from a legacy .env setup
// to a providers.yaml document. It returns true when a file was written.
// The .env file, if present, is backed up with a non-colliding suffix; the
// written yaml holds ${NAME} references so no secret lands on disk twice.
func MigrateFromEnv(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, fmt.Errorf("%s already exists, refusing to overwrite it", path)
	}

	// .env values become process env so the references resolve on load.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return false, fmt.Errorf("loading legacy .env: %w", err)
		}
	}

	if os.Getenv(envLLMAPIKey) == "" {
		return false, nil
	}

	var doc migratedDoc
	doc.LLM.APIKey = "${" + envLLMAPIKey + "}"
	doc.LLM.TimeoutSeconds = 300
	if endpoint := os.Getenv(envLLMEndpoint); endpoint != "" {
		doc.LLM.Mode = string(LLMModeProxy)
		doc.LLM.BaseURL = endpoint
	} else {
		doc.LLM.Mode = string(LLMModeDirect)
	}
	doc.LLM.Model = os.Getenv(envLLMModel)
	if doc.LLM.Model == "" {
		doc.LLM.Model = "claude-sonnet-4-5"
	}
	if os.Getenv(envMicroblogKey) != "" {
		doc.Social = &struct {
			MicroblogAPIKey string `yaml:"microblog_api_key"`
		}{MicroblogAPIKey: "${" + envMicroblogKey + "}"}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return false, fmt.Errorf("marshaling migrated config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}

	if _, err := os.Stat(".env"); err == nil {
		backup, err := backupPath(".env")
		if err != nil {
			return false, err
		}
		if err := os.Rename(".env", backup); err != nil {
			return false, fmt.Errorf("backing up .env: %w", err)
		}
		logger.Info("migrated legacy environment configuration", "config", path, "env_backup", backup)
	} else {
		logger.Info("migrated legacy environment configuration", "config", path)
	}
	return true, nil
}

// backupPath picks .env.bak, .env.bak.1, ... whichever does not collide.
func backupPath(base string) (string, error) {
	candidate := base + ".bak"
	for i := 0; ; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s.bak.%d", base, i)
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		if i > 100 {
			return "", fmt.Errorf("no free backup name for %s", base)
		}
	}
}
