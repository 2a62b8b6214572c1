package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/lock"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
)

func newReindexCmd(a *app) *cobra.Command {
	var (
		variantName string
		waitLock    bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "reindex PREFIX",
		Short: "Run an existing chain's indexer again and wait for it",
		Long: `Start a new run of the indexer of an already provisioned chain and poll it
until it finishes. No resources are created or changed. A recorded manifest
gets the new job outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			variant, err := schema.ParseVariant(variantName)
			if err != nil {
				return err
			}
			if err := validatePrefixes(args[:1]); err != nil {
				return err
			}
			if err := cfg.RequireService(); err != nil {
				return err
			}
			b, err := a.backends(cfg, a.logger)
			if err != nil {
				return err
			}

			prefix := args[0]
			l := lock.New(cfg.LockDir(), prefix)
			if waitLock {
				err = l.Acquire(cmd.Context())
			} else {
				err = l.TryAcquire()
			}
			if err != nil {
				return err
			}
			defer func() { _ = l.Release() }()

			orch := orchestrator(cfg, b, nil, a.logger)
			job, runErr := orch.Rerun(cmd.Context(), prefix, variant)
			if job.Status.Terminal() {
				saveRerun(context.WithoutCancel(cmd.Context()), cfg.ManifestPath(), prefix, variant, job)
			}

			p := a.printer(cmd)
			if jsonOutput {
				out := chainOutcome{Prefix: prefix, Variant: variant, JobStatus: job.Status.String(), Polls: job.Polls}
				if runErr != nil {
					out.Error = runErr.Error()
				}
				if err := p.JSON(out); err != nil {
					return err
				}
			} else if job.Status.Terminal() {
				p.Job(prefix, job)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&variantName, "variant", string(schema.VariantDocument), "Chain to rerun: document or chunk")
	cmd.Flags().BoolVar(&waitLock, "wait", false, "Wait for a prefix held by another process instead of failing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the job outcome as JSON")

	return cmd
}

// saveRerun stores the outcome of a rerun. Chains without a manifest on this
// machine are skipped.
func saveRerun(ctx context.Context, path, prefix string, variant schema.Variant, job provision.JobResult) {
	store, err := manifest.Open(path)
	if err != nil {
		slog.Warn("manifest_open_failed", cerrors.LogAttrs(err)...)
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.UpdateJob(ctx, prefix, variant, job); err != nil && !cerrors.IsNotFound(err) {
		slog.Warn("manifest_update_failed", cerrors.LogAttrs(err)...)
	}
}
