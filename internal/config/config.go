package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type AppConfig struct {
	ListenAddr     string
	GracePeriod    time.Duration
	AllowedOrigins []string
	PublicBaseURL  string

	RedisURL     string
	DatabaseURL  string
	WebhookURL   string
	ArchiveQueue int
	RecentLimit  int

	MessagesDir string
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// NewViper returns a viper instance that resolves keys from flags first and
// then from upper-cased environment variables (listen-addr -> LISTEN_ADDR).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers the server flags on fs and binds each one into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.String("listen-addr", ":3001", "address to listen on (env: LISTEN_ADDR)")
	fs.Duration("grace-period", 2*time.Minute, "how long a disconnected player's seat is held (env: GRACE_PERIOD)")
	fs.String("allowed-origins", "", "comma separated websocket origin patterns (env: ALLOWED_ORIGINS)")
	fs.String("public-base-url", "", "public client URL used in room invites (env: PUBLIC_BASE_URL)")
	fs.String("redis-url", "", "redis URL for recent match results (env: REDIS_URL)")
	fs.String("database-url", "", "postgres DSN for the match archive (env: DATABASE_URL)")
	fs.String("webhook-url", "", "URL that receives concluded matches as JSON (env: WEBHOOK_URL)")
	fs.Int("archive-queue", 64, "buffered archive records before dropping (env: ARCHIVE_QUEUE)")
	fs.Int("recent-limit", 20, "recent results kept per room in redis (env: RECENT_LIMIT)")
	fs.String("messages-dir", "", "directory of YAML message overrides (env: MESSAGES_DIR)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
	})
}

// Load reads the bound keys out of v and validates them.
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    strings.TrimSpace(v.GetString("listen-addr")),
		GracePeriod:   v.GetDuration("grace-period"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("public-base-url")), "/"),
		RedisURL:      strings.TrimSpace(v.GetString("redis-url")),
		DatabaseURL:   strings.TrimSpace(v.GetString("database-url")),
		WebhookURL:    strings.TrimSpace(v.GetString("webhook-url")),
		ArchiveQueue:  v.GetInt("archive-queue"),
		RecentLimit:   v.GetInt("recent-limit"),
		MessagesDir:   strings.TrimSpace(v.GetString("messages-dir")),
	}
	for _, p := range strings.Split(v.GetString("allowed-origins"), ",") {
		if s := strings.TrimSpace(p); s != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("GRACE_PERIOD must be positive: %s", c.GracePeriod)
	}
	if c.ArchiveQueue < 1 {
		return fmt.Errorf("ARCHIVE_QUEUE must be at least 1: %d", c.ArchiveQueue)
	}
	if c.RecentLimit < 1 {
		return fmt.Errorf("RECENT_LIMIT must be at least 1: %d", c.RecentLimit)
	}
	for name, raw := range map[string]string{"PUBLIC_BASE_URL": c.PublicBaseURL, "WEBHOOK_URL": c.WebhookURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
		}
	}
	return nil
}
