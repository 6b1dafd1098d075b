package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envDataDir, envCacheDir, envDeviceName, envAccountUID, envAccountTag, envListenAddr} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadMissingFileUsesPureDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv(envAccountUID, "acct-default")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	require.NotEmpty(t, cfg.DeviceID)
	require.Equal(t, "acct-default", cfg.AccountUID)
	require.Equal(t, filepath.Join(cfg.DataDir, "cache"), cfg.CacheDir)
	require.Equal(t, filepath.Join(cfg.DataDir, "control.sock"), cfg.ControlSocketPath)
	require.Equal(t, int64(4<<30), cfg.GC.MaxCASBytes)
}

func TestLoadFileOverridesDerivePathsFromNewDataDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_name: laptop
account_uid: acct-from-file
data_dir: `+filepath.Join(dir, "data")+`
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "laptop", cfg.DeviceName)
	require.Equal(t, "acct-from-file", cfg.AccountUID)
	require.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "data", "cache"), cfg.CacheDir,
		"cache dir must derive from the overridden data dir, not the default")
	require.Equal(t, filepath.Join(dir, "data", "control.sock"), cfg.ControlSocketPath)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account_uid: acct-from-file
account_tag: tag-from-file
`), 0o644))

	os.Setenv(envAccountUID, "acct-from-env")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "acct-from-env", cfg.AccountUID, "env override must win over file value")
	require.Equal(t, "tag-from-file", cfg.AccountTag, "file value must survive when no env override is set")
}

func TestLoadMissingAccountUIDFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
