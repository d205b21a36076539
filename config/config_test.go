package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.RedisURL)
	require.Equal(t, 5*time.Second, cfg.TickInterval)
	require.Equal(t, common.DefaultParameters(), cfg.Params)
	require.Equal(t, 5, cfg.Callback.MaxAttempts)
	lvl, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, lvl)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ORACLE_ADMIN=ops\nORACLE_PARAM_MIN_STAKE=250\n"), 0o600))
	t.Setenv("ORACLE_PARAM_NON_REVEAL_POLICY", "slash")
	t.Setenv("ORACLE_CALLBACK_MAX_ATTEMPTS", "7")
	t.Setenv("ORACLE_ADMIN", "from-env")
	t.Cleanup(func() { os.Unsetenv("ORACLE_PARAM_MIN_STAKE") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	// the process environment wins over the file
	require.Equal(t, "from-env", cfg.Admin)
	require.Equal(t, "250", cfg.Params.MinStake.String())
	require.Equal(t, common.NonRevealSlash, cfg.Params.NonRevealPolicy)
	require.Equal(t, 7, cfg.Callback.MaxAttempts)
}

func TestLoadRejectsInvalidParameters(t *testing.T) {
	t.Setenv("ORACLE_PARAM_SLASH_PERCENTAGE", "80")
	_, err := config.Load()
	require.ErrorIs(t, err, common.ErrInvalidParameters)

	t.Setenv("ORACLE_PARAM_SLASH_PERCENTAGE", "10")
	t.Setenv("ORACLE_PARAM_REPUTATION_DECREASE", "0")
	_, err = config.Load()
	require.ErrorIs(t, err, common.ErrInvalidParameters)

	t.Setenv("ORACLE_PARAM_NON_REVEAL_PENALTY", "0")
	t.Setenv("ORACLE_LOG_LEVEL", "loud")
	_, err = config.Load()
	require.ErrorIs(t, err, common.ErrInvalidParameters)
}
