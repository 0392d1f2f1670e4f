package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Port         string
	DBURL        string
	RedisAddr    string
	APISecretKey string

	ProxyList        []string
	ProxyConcurrency int
	SMTPProxyEnabled bool

	DNSServers  []string
	DNSTimeout  time.Duration
	HTTPTimeout time.Duration
	SMTPTimeout time.Duration
	MaxFanout   int

	LogLevel   string
	ConfigFile string

	Lists Lists
}

// Lists overrides the compiled-in heuristic lists. An empty slice keeps the default.
type Lists struct {
	DisposableDomains  []string         `toml:"disposable_domains"`
	Blacklists         []BlacklistEntry `toml:"blacklists"`
	SuspiciousTLDs     []string         `toml:"suspicious_tlds"`
	SuspiciousKeywords []string         `toml:"suspicious_keywords"`
	URLShorteners      []string         `toml:"url_shorteners"`
}

type BlacklistEntry struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Type string `toml:"type"`
}

// Load reads the environment and, when CONFIG_FILE is set, the TOML list file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             envOr("PORT", "8080"),
		DBURL:            os.Getenv("DB_URL"),
		RedisAddr:        envOr("REDIS_ADDR", "127.0.0.1:6379"),
		APISecretKey:     os.Getenv("API_SECRET_KEY"),
		ProxyList:        splitList(os.Getenv("PROXY_LIST")),
		SMTPProxyEnabled: envBool("SMTP_PROXY_ENABLED"),
		DNSServers:       splitList(os.Getenv("DNS_SERVERS")),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		ConfigFile:       os.Getenv("CONFIG_FILE"),
	}

	var err error
	if cfg.ProxyConcurrency, err = envInt("PROXY_CONCURRENCY", 0); err != nil {
		return nil, err
	}
	if cfg.MaxFanout, err = envInt("MAX_FANOUT", 8); err != nil {
		return nil, err
	}
	if cfg.MaxFanout <= 0 {
		return nil, fmt.Errorf("MAX_FANOUT must be positive, got %d", cfg.MaxFanout)
	}
	if cfg.DNSTimeout, err = envDuration("DNS_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SMTPTimeout, err = envDuration("SMTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		lists, err := LoadLists(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Lists = *lists
	}
	return cfg, nil
}

// LoadLists decodes a TOML list override file.
func LoadLists(path string) (*Lists, error) {
	var lists Lists
	if _, err := toml.DecodeFile(path, &lists); err != nil {
		return nil, fmt.Errorf("failed to load list overrides from %s: %w", path, err)
	}
	for i, b := range lists.Blacklists {
		if b.Host == "" {
			return nil, fmt.Errorf("blacklist entry %d has no host", i)
		}
		switch strings.ToLower(b.Type) {
		case "ip", "domain":
		default:
			return nil, fmt.Errorf("blacklist %q: type must be \"ip\" or \"domain\", got %q", b.Host, b.Type)
		}
	}
	return &lists, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "true" || v == "1"
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
