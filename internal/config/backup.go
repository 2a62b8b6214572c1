package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

const (
	// MaxBackups is the number of user config backups kept.
	MaxBackups = 3

	// BackupSuffix separates the config file name from the backup timestamp.
	BackupSuffix = ".bak"

	backupTimeLayout = "20060102-150405.000"
)

// Backup is a copy of the user config taken before it was rewritten.
type Backup struct {
	Path string
	// Taken comes from the file name, so copying a backup keeps its place
	// in the order. Names that do not parse fall back to the mod time.
	Taken time.Time
}

// BackupUserConfig copies the user config aside before `config init --force`
// or `config restore` rewrites it. It returns the backup path, or "" when
// there is no user config. When the newest backup already holds the same
// bytes its path is returned and no new file is written.
func BackupUserConfig() (string, error) {
	if !UserConfigExists() {
		return "", nil
	}
	configPath := GetUserConfigPath()
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", cerrors.New(cerrors.ErrCodeConfigNotFound, "failed to read config for backup", err).
			WithDetail("path", configPath)
	}

	backups, err := ListUserConfigBackups()
	if err != nil {
		return "", err
	}
	if len(backups) > 0 {
		if prev, err := os.ReadFile(backups[0].Path); err == nil && bytes.Equal(prev, data) {
			return backups[0].Path, nil
		}
	}

	now := time.Now()
	backupPath := backupName(configPath, now)
	// Two backups within the same millisecond would share a name.
	for n := 1; fileExists(backupPath); n++ {
		backupPath = fmt.Sprintf("%s-%d", backupName(configPath, now), n)
	}
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", cerrors.InternalError("failed to write config backup", err)
	}

	// Pruning is best-effort; the backup itself succeeded.
	_ = pruneBackups(append([]Backup{{Path: backupPath, Taken: now}}, backups...))
	return backupPath, nil
}

func backupName(configPath string, t time.Time) string {
	return configPath + BackupSuffix + "." + t.Format(backupTimeLayout)
}

// ListUserConfigBackups returns the user config backups, newest first.
func ListUserConfigBackups() ([]Backup, error) {
	configPath := GetUserConfigPath()
	dir := filepath.Dir(configPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerrors.InternalError("failed to list config directory", err)
	}

	prefix := filepath.Base(configPath) + BackupSuffix + "."
	var backups []Backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		b := Backup{Path: filepath.Join(dir, e.Name())}
		stamp := strings.TrimPrefix(e.Name(), prefix)
		t, err := time.ParseInLocation(backupTimeLayout, stamp, time.Local)
		if i := strings.LastIndexByte(stamp, '-'); err != nil && i > len("20060102") {
			// Collision counter, as in "20260101-120000.000-1".
			t, err = time.ParseInLocation(backupTimeLayout, stamp[:i], time.Local)
		}
		if err == nil {
			b.Taken = t
		} else if info, err := e.Info(); err == nil {
			b.Taken = info.ModTime()
		}
		backups = append(backups, b)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Taken.Equal(backups[j].Taken) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Taken.After(backups[j].Taken)
	})
	return backups, nil
}

// pruneBackups removes everything past the newest MaxBackups.
func pruneBackups(backups []Backup) error {
	if len(backups) <= MaxBackups {
		return nil
	}
	sort.SliceStable(backups, func(i, j int) bool { return backups[i].Taken.After(backups[j].Taken) })
	var errs []string
	for _, b := range backups[MaxBackups:] {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to prune config backups: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RestoreUserConfig replaces the user config with backupPath. The backup must
// load as a valid corpusctl config; otherwise the current file is untouched.
// The current config, if any, is backed up first.
func RestoreUserConfig(backupPath string) error {
	if !fileExists(backupPath) {
		return cerrors.New(cerrors.ErrCodeConfigNotFound, "backup file not found: "+backupPath, nil).
			WithSuggestion("Run 'corpusctl config restore --list' to see available backups")
	}

	check := NewConfig()
	if err := check.loadYAML(backupPath); err != nil {
		return err
	}
	if err := check.Validate(); err != nil {
		return cerrors.New(cerrors.ErrCodeConfigInvalid, "backup does not hold a valid config", err).
			WithDetail("path", backupPath)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return cerrors.InternalError("failed to read backup", err)
	}

	if _, err := BackupUserConfig(); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}

	configPath := GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return cerrors.InternalError("failed to create config directory", err)
	}
	// Write next to the target and rename so a crash never leaves half a file.
	tmp, err := os.CreateTemp(filepath.Dir(configPath), filepath.Base(configPath)+".restore-*")
	if err != nil {
		return cerrors.InternalError("failed to stage restored config", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cerrors.InternalError("failed to stage restored config", err)
	}
	if err := tmp.Close(); err != nil {
		return cerrors.InternalError("failed to stage restored config", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return cerrors.InternalError("failed to stage restored config", err)
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return cerrors.InternalError("failed to write restored config", err)
	}
	return nil
}
