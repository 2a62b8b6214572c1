package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusctl/internal/manifest"
)

func newListCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the chains provisioned from this machine",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			store, err := manifest.Open(cfg.ManifestPath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			if jsonOutput {
				if recs == nil {
					recs = []manifest.Record{}
				}
				return p.JSON(recs)
			}
			p.Manifests(recs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output manifests as JSON")

	return cmd
}
