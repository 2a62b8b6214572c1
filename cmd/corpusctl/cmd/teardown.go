package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/lock"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/ui"
)

func newTeardownCmd(a *app) *cobra.Command {
	var (
		variantFlag string
		corpus      bool
		waitLock    bool
	)

	cmd := &cobra.Command{
		Use:     "teardown PREFIX...",
		Aliases: []string{"delete"},
		Short:   "Delete the resource chains of prefixes",
		Long: `Delete the indexer, data source, index and, for the document chain, the
skillset and knowledge-store containers of each prefix. Missing resources are
skipped. Every resource is attempted even when some fail.

Knowledge-store containers are only deleted when a knowledge store connection
string is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			variant, err := schema.ParseVariant(variantFlag)
			if err != nil {
				return err
			}
			if err := validatePrefixes(args); err != nil {
				return err
			}
			if err := cfg.RequireTeardown(); err != nil {
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
			if b.Containers == nil {
				p.Warning("no knowledge store configured, containers are kept")
			}
			orch := orchestrator(cfg, b, nil, a.logger)

			failed := 0
			var errs []error
			for _, prefix := range args {
				if err := teardownPrefix(cmd.Context(), p, orch, store, lock.New(cfg.LockDir(), prefix), prefix, variant, corpus, waitLock); err != nil {
					failed++
					errs = append(errs, err)
				}
			}
			if failed > 0 {
				return cerrors.New(cerrors.ErrCodeTeardownFailed,
					fmt.Sprintf("teardown incomplete for %d of %d prefixes", failed, len(args)), errors.Join(errs...)).
					WithSuggestion("Rerun teardown; resources already deleted are skipped")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&variantFlag, "variant", string(schema.VariantDocument), "Chain to delete: document or chunk")
	cmd.Flags().BoolVar(&corpus, "corpus", false, "Delete the chunk chain, then the document chain")
	cmd.Flags().BoolVar(&waitLock, "wait", false, "Wait for a prefix held by another process instead of failing")
	cmd.MarkFlagsMutuallyExclusive("variant", "corpus")

	return cmd
}

func teardownPrefix(ctx context.Context, p *ui.Printer, orch *provision.Orchestrator, store *manifest.Store,
	l *lock.PrefixLock, prefix string, variant schema.Variant, corpus, wait bool) error {
	var err error
	if wait {
		err = l.Acquire(ctx)
	} else {
		err = l.TryAcquire()
	}
	if err != nil {
		p.Error("%s: %v", prefix, err)
		return err
	}
	defer func() { _ = l.Release() }()

	variants := []schema.Variant{variant}
	if corpus {
		err = orch.DeleteCorpus(ctx, prefix)
		variants = []schema.Variant{schema.VariantChunk, schema.VariantDocument}
	} else {
		err = orch.DeleteResources(ctx, prefix, variant)
	}

	if failures := provision.TeardownErrors(err); len(failures) > 0 {
		p.TeardownFailures(failures)
		return err
	}
	if err != nil {
		p.Error("%s: %v", prefix, err)
		return err
	}

	for _, v := range variants {
		if derr := store.Delete(ctx, prefix, v); derr != nil {
			return derr
		}
	}
	p.Success("%s: %s deleted", prefix, describeVariants(variants))
	return nil
}

func describeVariants(vs []schema.Variant) string {
	if len(vs) == 1 {
		return string(vs[0]) + " chain"
	}
	return "corpus"
}
