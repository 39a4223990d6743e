package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
app:
  name: storefront
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: shop
    user: shop
  elasticsearch:
    addresses: ["http://localhost:9200"]
  redis:
    address: localhost:6379
auth:
  jwt_secret: secret
workers:
  send-order-notification:
    enabled: true
scheduler:
  jobs:
    cleanup-old-notifications: "0 3 * * *"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "order-reports", cfg.Database.Elasticsearch.ReportsIndex)
	assert.Equal(t, 20, cfg.Database.Redis.PoolSize)
	assert.Equal(t, 3*time.Second, GetDuration(cfg.Database.Redis.ReadTimeout))
	assert.Equal(t, "order-notification", cfg.Camunda.NotificationProcessID)

	assert.Equal(t, "sns", cfg.Notifications.SMS.Provider)
	assert.Equal(t, "+254", cfg.Notifications.SMS.DefaultCountryCode)
	assert.Equal(t, 10*time.Second, GetDuration(cfg.Notifications.SendTimeout))

	assert.Equal(t, 24*time.Hour, GetDuration(cfg.Scheduler.RetryWindow))
	assert.Equal(t, 90*24*time.Hour, GetDuration(cfg.Scheduler.RetentionWindow))
	assert.Equal(t, 30*time.Minute, GetDuration(cfg.Scheduler.PendingOrderAge))

	// explicit schedule entries win, the rest come from the default beat
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.Jobs[JobCleanupNotifications])
	assert.Equal(t, "30 */2 * * *", cfg.Scheduler.Jobs[JobRetryFailedNotifications])
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Jobs[JobProcessPendingOrders])

	wcfg := GetWorkerConfig(cfg, "send-order-notification")
	assert.True(t, wcfg.Enabled)
	assert.Equal(t, 5, wcfg.MaxJobsActive)
	assert.Equal(t, 3, wcfg.MaxRetries)
}

func TestLoadFromFile_Validation(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing broker",
			yaml:    "database:\n  postgres:\n    host: x\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name: "bad sms provider",
			yaml: baseYAML + `
notifications:
  sms:
    provider: pigeon
`,
			wantErr: "notifications.sms.provider must be sns or gateway",
		},
		{
			name: "country code without plus",
			yaml: baseYAML + `
notifications:
  sms:
    default_country_code: "254"
`,
			wantErr: "default_country_code must start with +",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsWorkerEnabled_DefaultsToTrue(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"off": {Enabled: false}}}
	assert.False(t, IsWorkerEnabled(cfg, "off"))
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
}
