package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeeRate(t *testing.T) {
	for _, s := range []string{"0", "0.10", "0.125", "1"} {
		d, err := parseFeeRate(s)
		require.NoError(t, err, s)
		assert.True(t, d.Equal(decimal.RequireFromString(s)))
	}
	for _, s := range []string{"1.5", "-0.1", "ten percent", ""} {
		_, err := parseFeeRate(s)
		assert.Error(t, err, s)
	}
}

func TestLoad_FeeRateDefault(t *testing.T) {
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080", "DB_USER": "app", "DB_HOST": "localhost",
		"DB_PORT": "3306", "DB_NAME": "hotels", "JWT_SECRET": "s", "ACCESS_TOKEN_TTL_MIN": "15",
		"BCRYPT_COST": "4", "PLATFORM_FEE_RATE": "",
	} {
		t.Setenv(k, v)
	}
	cfg := Load()
	assert.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, "usd", cfg.Currency)
}
