package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/corpusctl/internal/async"
	"github.com/Aman-CERP/corpusctl/internal/config"
	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/lock"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
)

type provisionFlags struct {
	variant  string
	corpus   bool
	waitLock bool
	json     bool
}

func newProvisionCmd(a *app) *cobra.Command {
	var f provisionFlags

	cmd := &cobra.Command{
		Use:   "provision PREFIX...",
		Short: "Create resource chains and wait for their first indexer run",
		Long: `Create the index, data source, skillset and indexer for each prefix, then
poll the indexer until its first run finishes.

With --corpus the document chain is provisioned first and the chunk chain is
built over its knowledge-store projections. Prefixes are provisioned in
parallel, bounded by provisioning.parallelism.`,
		Example: `  corpusctl provision contoso-hr
  corpusctl provision --corpus contoso-hr contoso-finance
  corpusctl provision --variant chunk contoso-hr`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, a, f, args)
		},
	}

	cmd.Flags().StringVar(&f.variant, "variant", string(schema.VariantDocument), "Chain to build: document or chunk")
	cmd.Flags().BoolVar(&f.corpus, "corpus", false, "Build the document chain, then the chunk chain")
	cmd.Flags().BoolVar(&f.waitLock, "wait", false, "Wait for a prefix held by another process instead of failing")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output results as JSON")
	cmd.MarkFlagsMutuallyExclusive("variant", "corpus")

	return cmd
}

// chainOutcome is one provisioned chain, as reported to the user.
type chainOutcome struct {
	Prefix    string              `json:"prefix"`
	Variant   schema.Variant      `json:"variant"`
	Manifest  *provision.Manifest `json:"manifest,omitempty"`
	JobStatus string              `json:"job_status,omitempty"`
	Polls     int                 `json:"polls,omitempty"`
	Error     string              `json:"error,omitempty"`

	job *provision.JobResult
}

func runProvision(cmd *cobra.Command, a *app, f provisionFlags, prefixes []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	variant, err := schema.ParseVariant(f.variant)
	if err != nil {
		return err
	}
	if err := validatePrefixes(prefixes); err != nil {
		return err
	}
	if err := cfg.RequireProvisioning(!f.corpus && variant == schema.VariantChunk); err != nil {
		return err
	}
	b, err := a.backends(cfg, a.logger)
	if err != nil {
		return err
	}
	store, err := manifest.Open(cfg.ManifestPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	p := a.printer(cmd)
	var (
		mu       sync.Mutex
		outcomes []chainOutcome
	)

	runner := async.NewRunner(func(ctx context.Context, tracker *async.Tracker) error {
		orch := orchestrator(cfg, b, tracker, a.logger)
		var g errgroup.Group
		g.SetLimit(cfg.Provisioning.Parallelism)
		var errs []error
		for _, prefix := range prefixes {
			g.Go(func() error {
				got, err := provisionPrefix(ctx, cfg, orch, store, tracker, prefix, variant, f)
				mu.Lock()
				defer mu.Unlock()
				outcomes = append(outcomes, got...)
				if err != nil {
					errs = append(errs, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	})
	if !f.json {
		runner.Tracker().Subscribe(p.Progress)
	}

	runner.Start(cmd.Context())
	runErr := runner.Wait()

	if f.json {
		if err := p.JSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Manifest != nil {
				p.Manifest(*o.Manifest)
			}
			if o.job != nil {
				p.Job(o.Prefix, *o.job)
			}
		}
		if done, failed, _ := runner.Tracker().Counts(); done+failed > 1 {
			p.Header(fmt.Sprintf("%d chains done, %d failed", done, failed))
		}
	}

	if runErr != nil {
		return cerrors.New(cerrors.ErrCodeProvisionFailed,
			fmt.Sprintf("provisioning failed for %d of %d prefixes", len(multiErrors(runErr)), len(prefixes)), runErr)
	}
	return nil
}

// provisionPrefix builds the requested chains for one prefix while holding
// its lock, and records every chain whose indexer was created.
func provisionPrefix(ctx context.Context, cfg *config.Config, orch *provision.Orchestrator, store *manifest.Store,
	tracker *async.Tracker, prefix string, variant schema.Variant, f provisionFlags) ([]chainOutcome, error) {
	if f.corpus {
		variant = schema.VariantDocument
	}

	l := lock.New(cfg.LockDir(), prefix)
	var err error
	if f.waitLock {
		err = l.Acquire(ctx)
	} else {
		err = l.TryAcquire()
	}
	if err != nil {
		tracker.Fail(prefix, variant, err)
		return []chainOutcome{{Prefix: prefix, Variant: variant, Error: err.Error()}}, err
	}
	defer func() { _ = l.Release() }()

	var results []provision.Result
	if f.corpus {
		var res provision.CorpusResult
		res, err = orch.CreateCorpus(ctx, prefix)
		results = append(results, res.Document)
		switch {
		case res.Chunk != nil:
			results = append(results, *res.Chunk)
		case err != nil && res.Document.Job.Status.Terminal():
			// The document chain finished; the chunk chain failed before its indexer existed.
			results = append(results, provision.Result{Manifest: provision.Manifest{Prefix: prefix, Variant: schema.VariantChunk}})
		}
	} else {
		var res provision.Result
		res, err = orch.CreateResources(ctx, prefix, variant)
		results = append(results, res)
	}

	out := make([]chainOutcome, 0, len(results))
	for i, res := range results {
		o := chainOutcome{Prefix: prefix, Variant: res.Manifest.Variant}
		if o.Variant == "" {
			o.Variant = variant
		}
		// The error belongs to the last chain attempted.
		if err != nil && i == len(results)-1 {
			o.Error = err.Error()
		}
		if res.Manifest.Indexer == "" {
			out = append(out, o)
			continue
		}

		m := res.Manifest
		o.Manifest = &m
		var job *provision.JobResult
		if res.Job.Status.Terminal() {
			job = &res.Job
			o.job = job
			o.JobStatus = job.Status.String()
			o.Polls = job.Polls
		}
		// Record the chain even when ctx is cancelled so teardown can find it.
		if serr := store.Save(context.WithoutCancel(ctx), m, job); serr != nil {
			slog.Error("manifest_save_failed",
				append([]any{slog.String("prefix", prefix)}, cerrors.LogAttrs(serr)...)...)
			err = errors.Join(err, serr)
		}
		out = append(out, o)
	}
	return out, err
}

// multiErrors flattens an errors.Join result.
func multiErrors(err error) []error {
	if err == nil {
		return nil
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		return u.Unwrap()
	}
	return []error{err}
}
