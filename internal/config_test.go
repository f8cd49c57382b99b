package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/quire/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestStorageConfig_Invalid(t *testing.T) {
	cases := map[string]func(c *StorageConfig){
		"empty dir":      func(c *StorageConfig) { c.Dir = "" },
		"negative quota": func(c *StorageConfig) { c.QuotaBytes = -1 },
		"zero attempts":  func(c *StorageConfig) { c.RetryAttempts = 0 },
		"zero debounce":  func(c *StorageConfig) { c.Debounce = 0 },
	}
	for name, mutate := range cases {
		cfg := NewDefaultConfig()
		mutate(&cfg.Storage)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestInboxPath(t *testing.T) {
	c := InboxConfig{}
	if got := c.Path("/var/quire"); got != filepath.Join("/var/quire", "inbox") {
		t.Errorf("default path = %q", got)
	}
	c.Dir = "/drop"
	if got := c.Path("/var/quire"); got != "/drop" {
		t.Errorf("explicit path = %q", got)
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("QUIRE_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `app:
  log_level: debug
  http:
    port: 9090
  version: "1.4.0"
storage:
  dir: /tmp/quire
  quota_bytes: 1048576
  debounce: 250ms
  retry_attempts: 5
  retry_delay: 2s
inbox:
  enabled: false
auth:
  mode: token
  token: ${QUIRE_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.Version != "1.4.0" || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Storage.Debounce != 250*time.Millisecond || cfg.Storage.RetryDelay != 2*time.Second || cfg.Storage.RetryAttempts != 5 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Inbox.Enabled || cfg.Auth.Token != "s3cret" {
		t.Errorf("inbox/auth = %+v %+v", cfg.Inbox, cfg.Auth)
	}
}
