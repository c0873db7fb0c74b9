package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  mode: direct
  api_key: ${TEST_LLM_KEY}
  model: claude-sonnet-4-5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-123" {
		t.Errorf("api key not resolved: %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Mode != LLMModeDirect {
		t.Errorf("mode = %q, want direct", cfg.LLM.Mode)
	}
	if cfg.LLM.TimeoutSeconds != 300 {
		t.Errorf("timeout default = %d, want 300", cfg.LLM.TimeoutSeconds)
	}
	if cfg.Image.Configured() {
		t.Error("absent image section should not report configured")
	}
}

func TestLoadCollectsAllViolations(t *testing.T) {
	path := writeConfig(t, `
llm:
  mode: sideways
  api_key: ""
  model: ""
`)
	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	// Mode, key, and model problems must all surface in one pass.
	if len(vErr.Violations) < 3 {
		t.Errorf("want >=3 violations, got %d: %v", len(vErr.Violations), vErr.Violations)
	}
}

func TestLoadRejectsUnsetEnvReference(t *testing.T) {
	path := writeConfig(t, `
llm:
  mode: direct
  api_key: ${DAILYBRIEF_TEST_UNSET_VAR}
  model: claude-sonnet-4-5
`)
	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	found := false
	for _, v := range vErr.Violations {
		if strings.Contains(v, "DAILYBRIEF_TEST_UNSET_VAR") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations should name the unset variable: %v", vErr.Violations)
	}
}

func TestLoadRejectsPlaceholderKey(t *testing.T) {
	path := writeConfig(t, `
llm:
  mode: direct
  api_key: your-api-key
  model: claude-sonnet-4-5
`)
	if _, err := Load(path); err == nil {
		t.Error("placeholder api key should fail validation")
	}
}

func TestLoadRejectsTrailingV1(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  mode: proxy
  api_key: ${TEST_LLM_KEY}
  base_url: https://gateway.example.com/v1
  model: claude-sonnet-4-5
`)
	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	found := false
	for _, v := range vErr.Violations {
		if strings.Contains(v, "/v1") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations should flag the /v1 suffix: %v", vErr.Violations)
	}
}

func TestLoadProxyRequiresBaseURL(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  mode: proxy
  api_key: ${TEST_LLM_KEY}
  model: claude-sonnet-4-5
`)
	if _, err := Load(path); err == nil {
		t.Error("proxy mode without base_url should fail validation")
	}
}

func TestLoadImageSectionValidated(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  mode: direct
  api_key: ${TEST_LLM_KEY}
  model: claude-sonnet-4-5
image:
  mode: proxy
  api_key: img-key
  model: ""
`)
	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	// Proxy image mode needs an endpoint, and the model is missing.
	if len(vErr.Violations) < 2 {
		t.Errorf("want >=2 violations, got %v", vErr.Violations)
	}
}

func TestMigrateRefusesToOverwrite(t *testing.T) {
	t.Setenv(envLLMAPIKey, "sk-legacy-123")
	content := "llm:\n  mode: direct\n  api_key: existing\n  model: m\n"
	path := writeConfig(t, content)

	migrated, err := MigrateFromEnv(path)
	if err == nil {
		t.Fatal("migration over an existing file must error")
	}
	if migrated {
		t.Error("migration reported a write it must not perform")
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if string(data) != content {
		t.Errorf("existing configuration was rewritten:\n%s", data)
	}
}

func TestBackupPathAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	if err := os.WriteFile(base+".bak", nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := backupPath(base)
	if err != nil {
		t.Fatal(err)
	}
	if got != base+".bak.1" {
		t.Errorf("backupPath = %q, want %q", got, base+".bak.1")
	}
}
