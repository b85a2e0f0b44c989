package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, []string{"sql"}, c.Audit.Modules)
	assert.Equal(t, "sql", c.Audit.ReadModule)
	assert.Equal(t, 20, c.Challenge.TransactionIDDigits)
	assert.Equal(t, 120*time.Second, Duration(c.Challenge.Validity))
	assert.NotEmpty(t, c.App.Node)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	p := writeYAML(t, `
app:
  node: node-a
storage:
  driver: postgres
  dsn: postgres://localhost/tg
audit:
  modules: [sql, logger]
  read_module: sql
scheduler:
  enabled: true
  tick: 10s
`)
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("AUDIT_FAIL_ON_SIGN_ERROR", "true")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "node-a", c.App.Node)
	assert.Equal(t, "node-a", c.Audit.ServerName)
	assert.Equal(t, ":9999", c.Server.Addr)
	assert.True(t, c.Audit.FailOnSignError)
	assert.True(t, c.Scheduler.Enabled)
	assert.Equal(t, 10*time.Second, Duration(c.Scheduler.Tick))
}

func TestValidateCollectsErrors(t *testing.T) {
	p := writeYAML(t, `
storage:
  driver: postgres
audit:
  modules: [sql, kafka, carrier-pigeon]
  read_module: logger
challenge:
  validity: soon
`)
	_, err := Load(p)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "storage.dsn")
	assert.Contains(t, msg, "audit.kafka.brokers")
	assert.Contains(t, msg, "carrier-pigeon")
	assert.Contains(t, msg, "audit.read_module")
	assert.Contains(t, msg, "challenge.validity")
}

func TestTrustedProxies(t *testing.T) {
	p := writeYAML(t, `
server:
  trusted_proxies: ["10.0.0.0/8", "192.168.1.7", " ::1 "]
`)
	c, err := Load(p)
	require.NoError(t, err)
	prefixes, err := c.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.7/32", prefixes[1].String())
	assert.Equal(t, "::1/128", prefixes[2].String())

	t.Setenv("TRUSTED_PROXIES", "172.16.0.0/12")
	c, err = Load(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"172.16.0.0/12"}, c.Server.TrustedProxies)
}

func TestTrustedProxiesInvalid(t *testing.T) {
	p := writeYAML(t, `
server:
  trusted_proxies: ["10.0.0.0/99"]
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.trusted_proxies")
}
