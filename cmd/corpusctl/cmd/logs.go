package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/logging"
)

type logsOptions struct {
	lines   int
	level   string
	filter  string
	logFile string
	all     bool
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the debug log",
		Long: `Show the last entries of the debug log written by --debug runs.

Examples:
  corpusctl logs                   # Last 50 entries
  corpusctl logs -n 200            # Last 200 entries
  corpusctl logs --level warn      # Warnings and errors only
  corpusctl logs --filter indexer  # Entries matching a pattern
  corpusctl logs --all -n 1000     # Include rotated generations`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show entries matching a regex")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Read rotated log files too, oldest first")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeConfigNotFound, err.Error(), err).
			WithSuggestion("Run any command with --debug to start the debug log")
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return cerrors.ValidationError("invalid filter pattern", err)
		}
	}

	files := []string{path}
	if opts.all {
		if files, err = logging.Generations(path); err != nil {
			return cerrors.InternalError("failed to list log files", err)
		}
	}

	readers := make([]io.Reader, 0, len(files))
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return cerrors.InternalError("failed to open log file", err)
		}
		defer func() { _ = f.Close() }()
		readers = append(readers, f)
	}

	entries, err := tailEntries(io.MultiReader(readers...), opts.lines, opts.level, pattern)
	if err != nil {
		return cerrors.InternalError("failed to read log file", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n", path)
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, e)
	}
	return nil
}

// tailEntries returns the last n lines of r at or above level that match
// pattern. Lines that are not JSON records pass the level filter.
func tailEntries(r io.Reader, n int, level string, pattern *regexp.Regexp) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	minLevel := logging.LevelFromString(level)
	ring := make([]string, 0, n)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" {
			var rec struct {
				Level string `json:"level"`
			}
			if json.Unmarshal([]byte(line), &rec) == nil && rec.Level != "" &&
				logging.LevelFromString(rec.Level) < minLevel {
				continue
			}
		}
		if pattern != nil && !pattern.MatchString(line) {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	return ring, sc.Err()
}
