package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusctl/internal/config"
	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

type resourceReport struct {
	Role   naming.Role `json:"role"`
	Name   string      `json:"name"`
	Exists bool        `json:"exists"`
	Error  string      `json:"error,omitempty"`
}

type indexerReport struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	ServiceStatus  string `json:"service_status"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsFailed    int    `json:"items_failed"`
	ErrorMessage   string `json:"error,omitempty"`
}

type statusReport struct {
	Prefix    string           `json:"prefix"`
	Variant   schema.Variant   `json:"variant"`
	Resources []resourceReport `json:"resources"`
	Indexer   *indexerReport   `json:"indexer,omitempty"`

	status *search.IndexerStatus
	states []provision.ResourceState
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		variantFlag string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "status PREFIX",
		Short: "Show which resources of a chain exist and how its indexer is doing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			variant, err := schema.ParseVariant(variantFlag)
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

			report, err := collectStatus(cmd.Context(), cfg, b, args[0], variant)
			if err != nil {
				return err
			}
			if report.status != nil {
				recordJob(cmd.Context(), cfg, args[0], variant, report.Indexer.Name, *report.status)
			}

			p := a.printer(cmd)
			if jsonOutput {
				return p.JSON(report)
			}
			p.Header(args[0] + " (" + string(variant) + ")")
			p.Resources(report.states)
			if report.status != nil {
				p.IndexerStatus(report.Indexer.Name, *report.status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&variantFlag, "variant", string(schema.VariantDocument), "Chain to inspect: document or chunk")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, b Backends, prefix string, variant schema.Variant) (statusReport, error) {
	orch := orchestrator(cfg, b, nil, nil)
	states, err := orch.Inspect(ctx, prefix, variant)
	if err != nil {
		return statusReport{}, err
	}
	names, err := provision.ChainNames(prefix, variant)
	if err != nil {
		return statusReport{}, err
	}

	report := statusReport{Prefix: prefix, Variant: variant, states: states}
	indexerExists := false
	for _, s := range states {
		r := resourceReport{Role: s.Role, Name: s.Name, Exists: s.Exists}
		if s.Err != nil {
			r.Error = s.Err.Error()
		}
		if s.Role == naming.RoleIndexer && s.Exists {
			indexerExists = true
		}
		report.Resources = append(report.Resources, r)
	}
	if !indexerExists {
		return report, nil
	}

	st, err := b.Service.IndexerStatus(ctx, names.Indexer)
	if err != nil {
		return statusReport{}, err
	}
	report.status = &st
	report.Indexer = &indexerReport{
		Name:           names.Indexer,
		Status:         st.Status.String(),
		ServiceStatus:  st.ServiceStatus,
		ItemsProcessed: st.ItemsProcessed,
		ItemsFailed:    st.ItemsFailed,
		ErrorMessage:   st.ErrorMessage,
	}
	return report, nil
}

// recordJob refreshes the stored job outcome when the run has finished.
// Chains provisioned elsewhere have no manifest and are left alone.
func recordJob(ctx context.Context, cfg *config.Config, prefix string, variant schema.Variant, indexer string, st search.IndexerStatus) {
	if !st.Status.Terminal() {
		return
	}
	store, err := manifest.Open(cfg.ManifestPath())
	if err != nil {
		return
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Get(ctx, prefix, variant)
	if err != nil {
		return
	}
	job := provision.JobResult{Indexer: indexer, Status: st.Status, Detail: st, Polls: rec.Polls}
	if err := store.UpdateJob(ctx, prefix, variant, job); err != nil {
		slog.Warn("manifest_update_failed", cerrors.LogAttrs(err)...)
	}
}
