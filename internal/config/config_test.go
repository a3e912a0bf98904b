package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	vars := map[string]string{
		"TENANTFLOW_PRIMARY__ENV":                 "local",
		"TENANTFLOW_SERVER__PORT":                 "8080",
		"TENANTFLOW_SERVER__READ_TIMEOUT":         "30",
		"TENANTFLOW_SERVER__WRITE_TIMEOUT":        "30",
		"TENANTFLOW_SERVER__IDLE_TIMEOUT":         "60",
		"TENANTFLOW_SERVER__CORS_ALLOWED_ORIGINS": "http://localhost:3000",
		"TENANTFLOW_DATABASE__HOST":               "localhost",
		"TENANTFLOW_DATABASE__PORT":               "5432",
		"TENANTFLOW_DATABASE__USER":               "postgres",
		"TENANTFLOW_DATABASE__PASSWORD":           "postgres",
		"TENANTFLOW_DATABASE__NAME":               "tenantflow",
		"TENANTFLOW_DATABASE__SSL_MODE":           "disable",
		"TENANTFLOW_DATABASE__MAX_OPEN_CONNS":     "25",
		"TENANTFLOW_DATABASE__MAX_IDLE_CONNS":     "25",
		"TENANTFLOW_DATABASE__CONN_MAX_LIFETIME":  "300",
		"TENANTFLOW_DATABASE__CONN_MAX_IDLE_TIME": "300",
		"TENANTFLOW_REDIS__ADDRESS":               "localhost:6379",
		"TENANTFLOW_AUTH__SECRET_KEY":             "sk_test_clerk",
		"TENANTFLOW_INTEGRATION__RESEND_API_KEY":  "re_test",
		"TENANTFLOW_STRIPE__SECRET_KEY":           "sk_test_stripe",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults for optional blocks", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSAllowedOrigins)

		require.NotNil(t, cfg.Observability)
		assert.Equal(t, ServiceName, cfg.Observability.ServiceName)
		assert.Equal(t, "local", cfg.Observability.Environment)
		assert.False(t, cfg.Observability.NewRelicEnabled())

		require.NotNil(t, cfg.Billing)
		assert.Equal(t, []int{7, 3, 1, 0, -1, -3, -7}, cfg.Billing.ReminderThresholds)
		assert.Equal(t, uint(3), cfg.Billing.LedgerWriteAttempts)
		assert.Equal(t, "usd", cfg.Stripe.Currency)
		assert.NotEmpty(t, cfg.Integration.EmailFrom)
	})

	t.Run("reads nested billing overrides", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TENANTFLOW_BILLING__REMINDER_SCHEDULE", "30 8 * * *")
		t.Setenv("TENANTFLOW_BILLING__PAYMENT_LOCK_TTL", "2m")
		t.Setenv("TENANTFLOW_STRIPE__CURRENCY", "CAD")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "30 8 * * *", cfg.Billing.ReminderSchedule)
		assert.Equal(t, 2*time.Minute, cfg.Billing.PaymentLockTTL)
		assert.Equal(t, "*/15 * * * *", cfg.Billing.ReconcileSchedule)
		assert.Equal(t, "cad", cfg.Stripe.Currency)
	})

	t.Run("fails on missing required values", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TENANTFLOW_STRIPE__SECRET_KEY", "")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation")
	})
}

func TestBillingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *BillingConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *BillingConfig) {}},
		{name: "bad timezone", mutate: func(c *BillingConfig) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad cron", mutate: func(c *BillingConfig) { c.ReminderSchedule = "every day" }, wantErr: true},
		{name: "threshold out of range", mutate: func(c *BillingConfig) { c.ReminderThresholds = []int{45} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultBillingConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestObservabilityValidate(t *testing.T) {
	c := DefaultObservabilityConfig()
	require.NoError(t, c.Validate())

	c.Logging.Level = "verbose"
	assert.Error(t, c.Validate())

	c.Logging.Level = ""
	c.Environment = "production"
	assert.Equal(t, "info", c.GetLogLevel())
	assert.True(t, c.IsProduction())
}
