package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusctl/internal/config"
	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	configCmd, _, err := cmd.Find([]string{"config"})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["init"])
	assert.True(t, names["show"])
	assert.True(t, names["path"])
	assert.True(t, names["restore"])
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	// Given: a project config with an admin key
	h := newHarness(t, projectConfig)

	// When: showing the merged config
	out, err := h.run("config", "show")

	// Then: the endpoint is shown and secrets are masked
	require.NoError(t, err)
	assert.Contains(t, out, "https://svc.search.windows.net")
	assert.NotContains(t, out, "admin-secret")
	assert.NotContains(t, out, "AccountKey")
	assert.Contains(t, out, "********")
}

func TestConfigShow_JSONDefaults(t *testing.T) {
	h := newHarness(t, projectConfig)

	out, err := h.run("config", "show", "--json", "--source", "defaults")

	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	search := decoded["search"].(map[string]any)
	assert.Equal(t, "2023-11-01", search["api_version"])
	assert.Empty(t, search["endpoint"])
}

func TestConfigShow_InvalidSource(t *testing.T) {
	h := newHarness(t, projectConfig)

	_, err := h.run("config", "show", "--source", "everything")

	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidInput))
}

func TestConfigInit_CreatesThenUpgrades(t *testing.T) {
	// Given: no user config
	h := newHarness(t, projectConfig)
	path := config.GetUserConfigPath()

	// When: running init
	out, err := h.run("config", "init")

	// Then: the file is created with private permissions
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// When: running init again without --force
	out, err = h.run("config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// When: forcing
	out, err = h.run("config", "init", "--force")

	// Then: a backup is taken
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration upgraded")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigInit_Project(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.run("config", "init", "--project")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(h.dir, config.ProjectConfigFile))

	_, err = h.run("config", "init", "--project")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeResourceConflict))
}

func TestConfigPath(t *testing.T) {
	h := newHarness(t, projectConfig)

	out, err := h.run("config", "path")

	require.NoError(t, err)
	assert.Contains(t, out, config.GetUserConfigPath())
	assert.Contains(t, out, filepath.Join(h.dir, config.ProjectConfigFile))
	assert.Contains(t, out, h.stateDir)
}

func TestConfigRestore(t *testing.T) {
	// Given: a user config that was upgraded once, then edited
	h := newHarness(t, projectConfig)
	_, err := h.run("config", "init")
	require.NoError(t, err)
	_, err = h.run("config", "init", "--force")
	require.NoError(t, err)
	path := config.GetUserConfigPath()
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	want, err := os.ReadFile(backups[0].Path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	// When: listing and restoring the newest backup
	out, err := h.run("config", "restore", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, config.BackupSuffix)

	out, err = h.run("config", "restore")

	// Then: the backup content is back
	require.NoError(t, err)
	assert.Contains(t, out, "Restored user configuration")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestConfigRestore_NoBackups(t *testing.T) {
	h := newHarness(t, projectConfig)

	_, err := h.run("config", "restore")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user config backups")
}
