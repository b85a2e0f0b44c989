package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/config"
	"github.com/dropDatabas3/tokenguard/internal/rate"
)

func writeConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryStack(t *testing.T) {
	cfg := writeConfig(t, `
app:
  app_env: dev
  node: node-a
server:
  trusted_proxies: [10.0.0.0/8]
storage:
  driver: memory
cache:
  driver: memory
rate:
  enabled: true
  limit: 5
  window: 1m
security:
  admin_jwt_secret: s3cret
`)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Signer)
	assert.NotNil(t, c.Issuer)
	assert.IsType(t, &rate.MemoryLimiter{}, c.Limiter)
	require.Len(t, c.Trusted, 1)
	assert.Equal(t, "10.0.0.0/8", c.Trusted[0].String())
	assert.Contains(t, c.Tasks.Names(), "challenge_cleanup")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// con secret configurado los endpoints admin exigen token
	res, err = http.Get(srv.URL + "/event/")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestNew_LoadsAuditSigner(t *testing.T) {
	dir := t.TempDir()
	priv, pub, err := audit.GenerateKeyPair(audit.AlgEd25519)
	require.NoError(t, err)
	privFile := filepath.Join(dir, "audit.key")
	pubFile := filepath.Join(dir, "audit.pub")
	require.NoError(t, os.WriteFile(privFile, priv, 0o600))
	require.NoError(t, os.WriteFile(pubFile, pub, 0o644))

	cfg := writeConfig(t, `
app:
  app_env: dev
audit:
  private_key_file: `+privFile+`
  public_key_file: `+pubFile+`
`)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Signer)
	sig, err := c.Signer.Sign("row")
	require.NoError(t, err)
	assert.True(t, c.Signer.Verify("row", sig))
	assert.Nil(t, c.Limiter)
}

func TestNew_RequiresSecretBoxKeyOutsideDev(t *testing.T) {
	cfg := writeConfig(t, `
app:
  app_env: prod
security:
  admin_jwt_secret: s3cret
`)
	c, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, c)
}

func TestMigrate_MemoryIsNoop(t *testing.T) {
	cfg := writeConfig(t, "app:\n  app_env: dev\n")
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.NoError(t, c.Close())
}
