package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, 15*time.Minute, cfg.TransferRateWindow)

	l, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, "1", l.Min.String())
	assert.Equal(t, "100000", l.Max.String())
	assert.Equal(t, "50000", l.Daily.String())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("MIN_TRANSFER", "0.50")
	t.Setenv("DAILY_LIMIT", "750.25")
	t.Setenv("LEDGER_TIMEZONE", "Asia/Kolkata")
	t.Setenv("LOCK_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)

	l, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, "0.5", l.Min.String())
	assert.Equal(t, "750.25", l.Daily.String())
	assert.Equal(t, "Asia/Kolkata", l.Location.String())
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string][2]string{
		"unknown driver": {"LEDGER_DRIVER", "sqlite"},
		"bad amount":     {"MAX_TRANSFER", "lots"},
		"bad zone":       {"REPORTING_TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
