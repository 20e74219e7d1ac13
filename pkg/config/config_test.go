package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, c.Env)
	require.Equal(t, 8888, c.Server.Port)
	require.Equal(t, "Asia/Jakarta", c.Timezone)
	require.Equal(t, 10*time.Second, c.WhatsApp.Timeout)
	require.Equal(t, 3799, c.Radius.CoAPort)
	require.Equal(t, "0 9 * * *", c.Scheduler.CustomerInvoice)
	require.Equal(t, "10 0 1 * *", c.Scheduler.ResellerInvoice)
	require.True(t, c.Auth.UseJWT)
}

func TestNew_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9000
duitku:
  merchant_code: D0001
scheduler:
  remind_unpaid: "30 8 * * *"
`), 0o600))

	t.Setenv("APP_CONFIG_FILE", file)
	t.Setenv("APP_DUITKU_API_KEY", "secret-key")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, 9000, c.Server.Port)
	require.Equal(t, "D0001", c.Duitku.MerchantCode)
	require.Equal(t, "secret-key", c.Duitku.APIKey)
	require.Equal(t, "30 8 * * *", c.Scheduler.RemindUnpaid)
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := New()
	require.Error(t, err)
}

func TestLocation(t *testing.T) {
	var nilCfg *Config
	require.Equal(t, time.UTC, nilCfg.Location())
	require.Equal(t, "Asia/Jakarta", (&Config{Timezone: "Asia/Jakarta"}).Location().String())
}
