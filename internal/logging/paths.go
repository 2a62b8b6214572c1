package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultLogDir returns the default log directory (~/.corpusctl/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".corpusctl", "logs")
	}
	return filepath.Join(home, ".corpusctl", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "corpusctl.log")
}

// FindLogFile returns explicit if it exists, otherwise the default log path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found, run a command with --debug first.\nExpected at: %s", path)
}

// Generations returns the rotated files of the log at path followed by path
// itself, oldest first, so reading them in order replays the log.
// Files with a non-numeric suffix are not generations and are skipped.
func Generations(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to list rotated logs: %w", err)
	}
	nums := make(map[string]int, len(matches))
	var rotated []string
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, path+"."))
		if err != nil || n < 1 {
			continue
		}
		nums[m] = n
		rotated = append(rotated, m)
	}
	// Higher generation numbers are older.
	sort.Slice(rotated, func(i, j int) bool { return nums[rotated[i]] > nums[rotated[j]] })
	return append(rotated, path), nil
}
