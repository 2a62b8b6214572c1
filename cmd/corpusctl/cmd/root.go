// Package cmd provides the CLI commands for corpusctl.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusctl/internal/config"
	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/logging"
	"github.com/Aman-CERP/corpusctl/internal/profiling"
	"github.com/Aman-CERP/corpusctl/internal/ui"
	"github.com/Aman-CERP/corpusctl/pkg/version"
)

// app carries global flags and the state shared by subcommands.
type app struct {
	dir     string
	debug   bool
	quiet   bool
	noColor bool
	profile profiling.Options

	cfg     *config.Config
	cfgErr  error
	logger  *slog.Logger
	cleanup func()
	prof    *profiling.Session

	// Replaced in tests.
	backends    backendFactory
	newEmbedder embedderFactory
}

func newApp() *app {
	return &app{
		dir:         ".",
		logger:      slog.Default(),
		backends:    defaultBackends,
		newEmbedder: defaultEmbedder,
	}
}

// NewRootCmd creates the root command for the corpusctl CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpusctl",
		Short: "Provision search corpora over blob storage",
		Long: `corpusctl builds and tears down search resource chains: an index, a blob
data source, an enrichment skillset and an indexer for each prefix.

The document chain embeds every source document through a custom skill and
projects chunk records to a knowledge store. The chunk chain indexes those
projections. 'corpusctl skill serve' runs the embedding skill itself.`,
		Version:           version.Get().Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.before,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.after()
		},
	}
	cmd.SetVersionTemplate("corpusctl version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.dir, "dir", ".", "Directory to read "+config.ProjectConfigFile+" and "+config.DotEnvFile+" from")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress log output on stderr")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&a.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newProvisionCmd(a))
	cmd.AddCommand(newTeardownCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newReindexCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newSkillCmd(a))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

// before loads configuration and starts logging and profiling. A config
// error is kept for the commands that need configuration.
func (a *app) before(cmd *cobra.Command, _ []string) error {
	a.cfg, a.cfgErr = config.Load(a.dir)

	lc := logging.DefaultConfig()
	if a.debug {
		lc = logging.DebugConfig()
	}
	if a.cfg != nil {
		if !a.debug {
			lc.Level = a.cfg.Logging.Level
		}
		if a.cfg.Logging.File != "" {
			lc.FilePath = a.cfg.Logging.File
		}
		lc.MaxSizeMB, lc.MaxFiles = a.cfg.Logging.MaxSizeMB, a.cfg.Logging.MaxFiles
	}
	lc.Console = cmd.ErrOrStderr()
	lc.Quiet = a.quiet

	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger, a.cleanup = logger, cleanup
	slog.SetDefault(logger)
	if a.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", lc.FilePath),
			slog.String("version", version.Get().Version))
	}

	if a.profile.Enabled() {
		if a.prof, err = profiling.Start(a.profile); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) after() error {
	var err error
	if a.prof != nil {
		err = a.prof.Stop()
		a.prof = nil
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	return err
}

// config returns the loaded configuration or the error that prevented loading.
func (a *app) config() (*config.Config, error) {
	if a.cfgErr != nil {
		return nil, a.cfgErr
	}
	if a.cfg == nil {
		return nil, cerrors.New(cerrors.ErrCodeConfigNotFound, "configuration not loaded", nil)
	}
	return a.cfg, nil
}

func (a *app) printer(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout(), a.noColor)
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	if err != nil {
		_ = a.after()
		fmt.Fprint(os.Stderr, cerrors.FormatForCLI(err, a.debug))
	}
	return err
}
