package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func loadArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return LoadConfig(cmd)
}

func stubKeyring(t *testing.T, entries map[string]string) {
	t.Helper()
	prev := keyringGet
	keyringGet = func(key string) (string, error) {
		if v, ok := entries[key]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { keyringGet = prev })
}

func TestLoadConfigSheetsGmail(t *testing.T) {
	cfg, err := loadArgs(t, "--spreadsheet-id", "abc", "--credentials", "creds.json", "--interval", "3s")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store != StoreSheets || cfg.Gateway != GatewayGmail {
		t.Errorf("backends = %s/%s, want sheets/gmail", cfg.Store, cfg.Gateway)
	}
	if cfg.Interval != 3*time.Second {
		t.Errorf("Interval = %v, want 3s", cfg.Interval)
	}
	if cfg.Cache.Small != 10 || cfg.Cache.Large != 50 || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.VerifyWindow != 72*time.Hour {
		t.Errorf("VerifyWindow = %v, want 72h", cfg.VerifyWindow)
	}
}

func TestLoadConfigDryRunSelectsMbox(t *testing.T) {
	state := t.TempDir()
	cfg, err := loadArgs(t, "--store", "sqlite", "--dry-run", "--from", "me@example.com", "--state-dir", state)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Gateway != GatewayMbox {
		t.Errorf("Gateway = %s, want mbox", cfg.Gateway)
	}
	if want := filepath.Join(state, "outbox.mbox"); cfg.Mbox.OutboxPath != want {
		t.Errorf("OutboxPath = %s, want %s", cfg.Mbox.OutboxPath, want)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("MAILMERGE_SPREADSHEET_ID", "from-env")
	t.Setenv("MAILMERGE_CREDENTIALS", "creds.json")
	t.Setenv("MAILMERGE_LOG_LEVEL", "WARNING")

	cfg, err := loadArgs(t)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SpreadsheetID != "from-env" {
		t.Errorf("SpreadsheetID = %q, want from-env", cfg.SpreadsheetID)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail-merge.yaml")
	content := "store: sqlite\ngateway: mbox\nfrom: me@example.com\ninterval: 5s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadArgs(t, "--config", path, "--interval", "2s")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.Gateway != GatewayMbox {
		t.Errorf("backends = %s/%s, want sqlite/mbox", cfg.Store, cfg.Gateway)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want flag value 2s", cfg.Interval)
	}
}

func TestLoadConfigIMAPSecrets(t *testing.T) {
	stubKeyring(t, map[string]string{"imap:me@example.com": "from-keyring"})
	t.Setenv("IMAP_PASS", "")
	t.Setenv("SMTP_PASS", "")

	cfg, err := loadArgs(t, "--store", "sqlite", "--gateway", "imap",
		"--imap-host", "imap.example.com", "--imap-user", "me@example.com",
		"--smtp-host", "smtp.example.com")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAP.Pass != "from-keyring" {
		t.Errorf("IMAP.Pass = %q, want keyring value", cfg.IMAP.Pass)
	}
	if cfg.SMTP.Pass != "from-keyring" || cfg.SMTP.User != "me@example.com" {
		t.Errorf("SMTP = %+v, want IMAP account reused", cfg.SMTP)
	}
	if cfg.From != "me@example.com" {
		t.Errorf("From = %q", cfg.From)
	}
}

func TestSecretPrecedence(t *testing.T) {
	stubKeyring(t, map[string]string{"k": "ring"})
	t.Setenv("SECRET_TEST", "env")

	if got := Secret("flag", "SECRET_TEST", "k"); got != "flag" {
		t.Errorf("Secret() = %q, want flag", got)
	}
	if got := Secret("", "SECRET_TEST", "k"); got != "env" {
		t.Errorf("Secret() = %q, want env", got)
	}
	t.Setenv("SECRET_TEST", "")
	if got := Secret("", "SECRET_TEST", "k"); got != "ring" {
		t.Errorf("Secret() = %q, want ring", got)
	}
	if got := Secret("", "SECRET_TEST", "missing"); got != "" {
		t.Errorf("Secret() = %q, want empty", got)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Store:        StoreSQLite,
		SQLitePath:   "db",
		Gateway:      GatewayMbox,
		From:         "me@example.com",
		Interval:     time.Second,
		VerifyWindow: time.Hour,
		ThreadWindow: time.Hour,
		LogLevel:     "info",
	}
	valid.Cache.Small, valid.Cache.Large, valid.Cache.TTL = 10, 50, time.Minute

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store = "csv" }, "invalid --store"},
		{"sheets without id", func(c *Config) { c.Store = StoreSheets }, "--spreadsheet-id"},
		{"unknown gateway", func(c *Config) { c.Gateway = "pop3" }, "invalid --gateway"},
		{"gmail without credentials", func(c *Config) { c.Gateway = GatewayGmail }, "--credentials"},
		{"imap without host", func(c *Config) { c.Gateway = GatewayIMAP }, "--imap-host"},
		{"imap without password", func(c *Config) {
			c.Gateway = GatewayIMAP
			c.IMAP = IMAPConfig{Host: "h", User: "u", Port: 993}
		}, "IMAP password"},
		{"ses without region", func(c *Config) {
			c.Gateway, c.Transport = GatewayIMAP, TransportSES
			c.IMAP = IMAPConfig{Host: "h", User: "u", Pass: "p", Port: 993}
		}, "--ses-region"},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, "--interval"},
		{"cache tiers", func(c *Config) { c.Cache.Large = 5 }, "--draft-cache-large"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "--log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateConfig() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
