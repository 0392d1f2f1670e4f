package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "REDIS_ADDR", "DNS_TIMEOUT", "MAX_FANOUT", "CONFIG_FILE", "PROXY_LIST", "DNS_SERVERS", "HTTP_TIMEOUT", "SMTP_TIMEOUT", "PROXY_CONCURRENCY"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.DNSTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8, cfg.MaxFanout)
	assert.Empty(t, cfg.ProxyList)
	assert.Empty(t, cfg.Lists.DisposableDomains)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DNS_SERVERS", "9.9.9.9:53, 1.1.1.1:53,")
	t.Setenv("DNS_TIMEOUT", "2s")
	t.Setenv("SMTP_PROXY_ENABLED", "TRUE")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"9.9.9.9:53", "1.1.1.1:53"}, cfg.DNSServers)
	assert.Equal(t, 2*time.Second, cfg.DNSTimeout)
	assert.True(t, cfg.SMTPProxyEnabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	t.Setenv("DNS_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DNS_TIMEOUT", "")
	t.Setenv("MAX_FANOUT", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.toml")
	content := `
disposable_domains = ["burner.test"]
suspicious_tlds = [".zip"]

[[blacklists]]
name = "Local RBL"
host = "rbl.example.org"
type = "ip"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lists, err := LoadLists(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"burner.test"}, lists.DisposableDomains)
	assert.Equal(t, []string{".zip"}, lists.SuspiciousTLDs)
	require.Len(t, lists.Blacklists, 1)
	assert.Equal(t, BlacklistEntry{Name: "Local RBL", Host: "rbl.example.org", Type: "ip"}, lists.Blacklists[0])
}

func TestLoadListsRejectsUnknownBlacklistType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.toml")
	content := "[[blacklists]]\nname = \"x\"\nhost = \"x.example\"\ntype = \"url\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadLists(path)
	assert.Error(t, err)
}
