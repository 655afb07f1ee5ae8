package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mail-merge/draft"
	"github.com/dhcgn/mail-merge/runner"
	"github.com/dhcgn/mail-merge/thread"
)

const envPrefix = "MAILMERGE"

// Backend names accepted by --store, --gateway and --transport.
const (
	StoreSheets = "sheets"
	StoreSQLite = "sqlite"

	GatewayGmail = "gmail"
	GatewayIMAP  = "imap"
	GatewayMbox  = "mbox"

	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

type IMAPConfig struct {
	Host               string
	Port               int
	User               string
	Pass               string
	UseTLS             bool
	InsecureSkipVerify bool
	DraftsMailbox      string
	SentMailbox        string
	InboxMailbox       string
}

type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Pass        string
	ImplicitTLS bool
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type MboxConfig struct {
	DraftsPath string
	OutboxPath string
	InboxPath  string
}

// Config captures every option of the mail-merge commands.
type Config struct {
	Store     string
	Gateway   string
	Transport string

	SpreadsheetID   string
	ContactsSheet   string
	TemplateSheet   string
	CredentialsFile string
	GmailUser       string
	SQLitePath      string
	TemplateFile    string
	From            string

	IMAP IMAPConfig
	SMTP SMTPConfig
	SES  SESConfig
	Mbox MboxConfig

	Interval     time.Duration
	VerifyWindow time.Duration
	ThreadWindow time.Duration
	Cache        draft.CacheConfig

	DryRun   bool
	Yes      bool
	LogLevel string
	LogDir   string
	StateDir string
}

// RegisterFlags attaches all CLI flags to cmd as persistent flags so every
// subcommand shares them.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "YAML file with option values (flag names as keys)")

	flags.String("store", StoreSheets, "Contact store: sheets or sqlite")
	flags.String("gateway", GatewayGmail, "Mail gateway: gmail, imap or mbox")
	flags.String("transport", TransportSMTP, "Transport used by the imap gateway: smtp or ses")

	flags.String("spreadsheet-id", "", "Google spreadsheet holding the contact and template sheets")
	flags.String("contacts-sheet", "Contacts", "Name of the contact sheet")
	flags.String("template-sheet", "Template", "Name of the template configuration sheet")
	flags.String("credentials", "", "Google credentials JSON (service account or OAuth client)")
	flags.String("gmail-user", "me", "Mailbox to act for; service accounts impersonate it")
	flags.String("sqlite", filepath.Join(defaultStateDir, "mailmerge.db"), "SQLite database for the sqlite store")
	flags.String("template-file", "", "YAML template configuration overriding the store's template")
	flags.String("from", "", "Sender address for imap and mbox gateways")

	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, then the keyring)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("imap-drafts", "Drafts", "IMAP mailbox holding drafts")
	flags.String("imap-sent", "Sent", "IMAP mailbox holding sent mail")
	flags.String("imap-inbox", "INBOX", "IMAP inbox mailbox")

	flags.String("smtp-host", "", "SMTP submission server")
	flags.Int("smtp-port", 587, "SMTP submission port")
	flags.String("smtp-user", "", "SMTP username (defaults to the IMAP username)")
	flags.String("smtp-pass", "", "SMTP password (falls back to SMTP_PASS env var, then the keyring)")
	flags.Bool("smtp-implicit-tls", false, "Dial SMTP over TLS instead of STARTTLS")

	flags.String("ses-region", "", "AWS region for SES")
	flags.String("ses-access-key-id", "", "AWS access key id (default credential chain when empty)")
	flags.String("ses-secret-access-key", "", "AWS secret access key")

	flags.String("mbox-drafts", "", "mbox file holding drafts for the mbox gateway")
	flags.String("mbox-outbox", "", "mbox file receiving messages from the mbox gateway (default <state-dir>/outbox.mbox)")
	flags.String("mbox-inbox", "", "mbox file searched as inbox by the mbox gateway")

	flags.Duration("interval", runner.DefaultInterval, "Pause between contacts")
	flags.Duration("verify-window", runner.DefaultVerifyWindow, "Search window when verifying earlier sends")
	flags.Duration("thread-window", thread.DefaultWindow, "Search window for reply threads")
	flags.Int("draft-cache-small", draft.DefaultCacheConfig.Small, "Drafts listed on the first lookup")
	flags.Int("draft-cache-large", draft.DefaultCacheConfig.Large, "Drafts listed when the first lookup misses")
	flags.Duration("draft-cache-ttl", draft.DefaultCacheConfig.TTL, "Draft cache lifetime")

	flags.Bool("dry-run", false, "Write messages to a local mbox outbox instead of sending")
	flags.BoolP("yes", "y", false, "Answer every confirmation with yes")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.String("state-dir", defaultStateDir, "Directory for the send journal and local outbox")

	return nil
}

// LoadConfig resolves every option from flags, MAILMERGE_* environment
// variables and the optional --config file, in that order of precedence.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Config{
		Store:     strings.ToLower(v.GetString("store")),
		Gateway:   strings.ToLower(v.GetString("gateway")),
		Transport: strings.ToLower(v.GetString("transport")),

		SpreadsheetID:   v.GetString("spreadsheet-id"),
		ContactsSheet:   v.GetString("contacts-sheet"),
		TemplateSheet:   v.GetString("template-sheet"),
		CredentialsFile: v.GetString("credentials"),
		GmailUser:       v.GetString("gmail-user"),
		SQLitePath:      v.GetString("sqlite"),
		TemplateFile:    v.GetString("template-file"),
		From:            v.GetString("from"),

		IMAP: IMAPConfig{
			Host:               v.GetString("imap-host"),
			Port:               v.GetInt("imap-port"),
			User:               v.GetString("imap-user"),
			Pass:               v.GetString("imap-pass"),
			UseTLS:             v.GetBool("use-tls"),
			InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
			DraftsMailbox:      v.GetString("imap-drafts"),
			SentMailbox:        v.GetString("imap-sent"),
			InboxMailbox:       v.GetString("imap-inbox"),
		},
		SMTP: SMTPConfig{
			Host:        v.GetString("smtp-host"),
			Port:        v.GetInt("smtp-port"),
			User:        v.GetString("smtp-user"),
			Pass:        v.GetString("smtp-pass"),
			ImplicitTLS: v.GetBool("smtp-implicit-tls"),
		},
		SES: SESConfig{
			Region:          v.GetString("ses-region"),
			AccessKeyID:     v.GetString("ses-access-key-id"),
			SecretAccessKey: v.GetString("ses-secret-access-key"),
		},
		Mbox: MboxConfig{
			DraftsPath: v.GetString("mbox-drafts"),
			OutboxPath: v.GetString("mbox-outbox"),
			InboxPath:  v.GetString("mbox-inbox"),
		},

		Interval:     v.GetDuration("interval"),
		VerifyWindow: v.GetDuration("verify-window"),
		ThreadWindow: v.GetDuration("thread-window"),
		Cache: draft.CacheConfig{
			Small: v.GetInt("draft-cache-small"),
			Large: v.GetInt("draft-cache-large"),
			TTL:   v.GetDuration("draft-cache-ttl"),
		},

		DryRun:   v.GetBool("dry-run"),
		Yes:      v.GetBool("yes"),
		LogLevel: strings.ToLower(v.GetString("log-level")),
		LogDir:   v.GetString("log-dir"),
		StateDir: v.GetString("state-dir"),
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DryRun {
		cfg.Gateway = GatewayMbox
	}
	if cfg.Mbox.OutboxPath == "" {
		cfg.Mbox.OutboxPath = filepath.Join(cfg.StateDir, "outbox.mbox")
	}
	if cfg.SMTP.User == "" {
		cfg.SMTP.User = cfg.IMAP.User
	}
	if cfg.From == "" {
		cfg.From = cfg.IMAP.User
	}

	if err := resolveSecrets(&cfg); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveSecrets fills the passwords the selected backends need.
func resolveSecrets(cfg *Config) error {
	if cfg.Gateway != GatewayIMAP {
		return nil
	}
	cfg.IMAP.Pass = Secret(cfg.IMAP.Pass, "IMAP_PASS", KeyIMAP(cfg.IMAP.User))
	if cfg.Transport == TransportSMTP {
		cfg.SMTP.Pass = Secret(cfg.SMTP.Pass, "SMTP_PASS", KeySMTP(cfg.SMTP.User))
		if cfg.SMTP.Pass == "" && cfg.SMTP.User == cfg.IMAP.User {
			cfg.SMTP.Pass = cfg.IMAP.Pass
		}
	}
	return nil
}

var errMissing = errors.New("missing option")

func validateConfig(cfg Config) error {
	switch cfg.Store {
	case StoreSheets:
		if cfg.SpreadsheetID == "" {
			return fmt.Errorf("%w: --spreadsheet-id is required for the sheets store", errMissing)
		}
		if cfg.CredentialsFile == "" {
			return fmt.Errorf("%w: --credentials is required for the sheets store", errMissing)
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("%w: --sqlite is required for the sqlite store", errMissing)
		}
	default:
		return fmt.Errorf("invalid --store: %s", cfg.Store)
	}

	switch cfg.Gateway {
	case GatewayGmail:
		if cfg.CredentialsFile == "" {
			return fmt.Errorf("%w: --credentials is required for the gmail gateway", errMissing)
		}
	case GatewayIMAP:
		if err := validateIMAP(cfg); err != nil {
			return err
		}
	case GatewayMbox:
		if cfg.From == "" {
			return fmt.Errorf("%w: --from is required for the mbox gateway", errMissing)
		}
	default:
		return fmt.Errorf("invalid --gateway: %s", cfg.Gateway)
	}

	if cfg.Interval < 0 {
		return fmt.Errorf("--interval must not be negative")
	}
	if cfg.VerifyWindow <= 0 || cfg.ThreadWindow <= 0 {
		return fmt.Errorf("--verify-window and --thread-window must be positive")
	}
	if cfg.Cache.Small <= 0 || cfg.Cache.Large < cfg.Cache.Small {
		return fmt.Errorf("--draft-cache-large must be at least --draft-cache-small, which must be positive")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("--draft-cache-ttl must be positive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func validateIMAP(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("%w: --imap-host is required for the imap gateway", errMissing)
	}
	if cfg.IMAP.User == "" {
		return fmt.Errorf("%w: --imap-user is required for the imap gateway", errMissing)
	}
	if cfg.IMAP.Pass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS env var or the keyring")
	}
	if cfg.IMAP.Port <= 0 || cfg.IMAP.Port > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.From == "" {
		return fmt.Errorf("%w: --from is required for the imap gateway", errMissing)
	}

	switch cfg.Transport {
	case TransportSMTP:
		if cfg.SMTP.Host == "" {
			return fmt.Errorf("%w: --smtp-host is required for the smtp transport", errMissing)
		}
		if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
			return fmt.Errorf("--smtp-port must be between 1 and 65535")
		}
	case TransportSES:
		if cfg.SES.Region == "" {
			return fmt.Errorf("%w: --ses-region is required for the ses transport", errMissing)
		}
		if (cfg.SES.AccessKeyID == "") != (cfg.SES.SecretAccessKey == "") {
			return fmt.Errorf("--ses-access-key-id and --ses-secret-access-key go together")
		}
	default:
		return fmt.Errorf("invalid --transport: %s", cfg.Transport)
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mail-merge"), nil
}
