package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/corpusctl/internal/config"
	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage corpusctl configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/corpusctl/config.yaml)
  3. Project config (.corpusctl.yaml)
  4. .env in the working directory
  5. Environment variables (AZURE_SEARCH_*, CORPUSCTL_*, ...)`,
		Example: `  # Create user config with defaults
  corpusctl config init

  # Show effective configuration with secrets masked
  corpusctl config show`,
	}

	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigPathCmd(a))
	cmd.AddCommand(newConfigRestoreCmd(a))

	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with defaults",
		Long: `Create the user configuration file, or with --project the project file in
--dir. With --force an existing user file is backed up and rewritten with any
new defaults added; its settings are preserved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)

			if project {
				path := filepath.Join(a.dir, config.ProjectConfigFile)
				if fileExists(path) && !force {
					return cerrors.New(cerrors.ErrCodeResourceConflict, "project config already exists: "+path, nil).
						WithSuggestion("Use --force to overwrite it")
				}
				if err := config.NewConfig().WriteYAML(path); err != nil {
					return err
				}
				p.Success("Created project configuration")
				p.Info("Location: %s", path)
				return nil
			}

			path := config.GetUserConfigPath()
			if !config.UserConfigExists() {
				if err := config.NewConfig().WriteYAML(path); err != nil {
					return err
				}
				p.Success("Created user configuration")
				p.Info("Location: %s", path)
				p.Info("Run 'corpusctl config show' to verify")
				return nil
			}
			if !force {
				p.Warning("User configuration already exists")
				p.Info("Location: %s", path)
				p.Info("Use --force to add new defaults (your settings are preserved)")
				return nil
			}

			backup, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("failed to backup config: %w", err)
			}
			existing, err := config.LoadUserConfig()
			if err != nil {
				return err
			}
			if err := existing.WriteYAML(path); err != nil {
				return err
			}
			p.Success("Configuration upgraded")
			p.Info("Location: %s", path)
			p.Info("Backup:   %s", backup)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Create "+config.ProjectConfigFile+" in --dir instead")

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging all sources. Secrets are masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch source {
			case "merged":
				loaded, err := a.config()
				if err != nil {
					return err
				}
				cfg = loaded
			case "user":
				loaded, err := config.LoadUserConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			case "defaults":
				cfg = config.NewConfig()
			default:
				return cerrors.New(cerrors.ErrCodeInvalidInput, "invalid source: "+source, nil).
					WithSuggestion("Use merged, user or defaults")
			}

			redacted := cfg.Redacted()
			if jsonOutput {
				return a.printer(cmd).JSON(redacted)
			}
			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")

	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(out, "project: %s\n", filepath.Join(a.dir, config.ProjectConfigFile))
			if a.cfg != nil {
				_, _ = fmt.Fprintf(out, "state:   %s\n", a.cfg.State.Dir)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd(a *app) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [BACKUP]",
		Short: "Restore the user configuration from a backup",
		Long: `Restore the user configuration from a backup taken by 'config init --force'.
Without an argument the newest backup is used. The current file is backed up
first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}

			if list {
				if len(backups) == 0 {
					p.Info("no backups")
					return nil
				}
				for _, b := range backups {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", b.Taken.Format(time.RFC3339), b.Path)
				}
				return nil
			}

			var backup string
			switch {
			case len(args) == 1:
				backup = args[0]
			case len(backups) > 0:
				backup = backups[0].Path
			default:
				return cerrors.New(cerrors.ErrCodeConfigNotFound, "no user config backups found", nil).
					WithSuggestion("Backups are taken by 'corpusctl config init --force'")
			}

			if err := config.RestoreUserConfig(backup); err != nil {
				return err
			}
			p.Success("Restored user configuration")
			p.Info("From: %s", backup)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List backups, newest first")

	return cmd
}
