package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, NumberingSerialized, cfg.CheckIn.Numbering)
	assert.Equal(t, ReconfirmRenumber, cfg.CheckIn.ReconfirmPolicy)
	assert.Equal(t, 2*time.Second, cfg.CheckIn.ScanInterval)
	assert.Equal(t, 3, cfg.CheckIn.MaxRetries)
	assert.True(t, cfg.Registration.Open)
	assert.Equal(t, 256, cfg.Tickets.QRSize)
}

func TestLoadCheckInOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKIN_NUMBERING", "MAX_PLUS_ONE")
	t.Setenv("CHECKIN_RECONFIRM_POLICY", "keep")
	t.Setenv("CHECKIN_SCAN_INTERVAL", "500ms")
	t.Setenv("REGISTRATION_FEE", "350.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NumberingMaxPlusOne, cfg.CheckIn.Numbering)
	assert.Equal(t, ReconfirmKeep, cfg.CheckIn.ReconfirmPolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.CheckIn.ScanInterval)
	assert.InDelta(t, 350.5, cfg.Registration.DefaultFee, 0.001)
}

func TestLoadRejectsUnknownNumbering(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKIN_NUMBERING", "sequence")
	t.Setenv("CHECKIN_SCAN_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NumberingSerialized, cfg.CheckIn.Numbering)
	assert.Equal(t, 2*time.Second, cfg.CheckIn.ScanInterval)
}
