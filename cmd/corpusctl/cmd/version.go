package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusctl/internal/search"
	"github.com/Aman-CERP/corpusctl/pkg/version"
)

// versionReport is the build plus the wire versions corpusctl would speak
// with the current configuration.
type versionReport struct {
	version.Info
	SearchAPIVersion    string `json:"search_api_version"`
	EmbeddingAPIVersion string `json:"embedding_api_version,omitempty"`
	UserAgent           string `json:"user_agent"`
}

func newVersionCmd(a *app) *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the corpusctl build and the search management API version requests
are sent with. A broken configuration does not fail this command; the built-in
API version is reported instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := versionReport{
				Info:             version.Get(),
				SearchAPIVersion: search.DefaultAPIVersion,
				UserAgent:        version.UserAgent(),
			}
			if a.cfg != nil && a.cfgErr == nil {
				if v := a.cfg.Search.APIVersion; v != "" {
					r.SearchAPIVersion = v
				}
				if strings.EqualFold(a.cfg.Embedding.Provider, "azure") {
					r.EmbeddingAPIVersion = a.cfg.Embedding.APIVersion
				}
			}

			out := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(out, r.Version)
				return err
			case jsonOutput:
				return a.printer(cmd).JSON(r)
			}
			_, _ = fmt.Fprintln(out, r.Info.String())
			_, _ = fmt.Fprintf(out, "  search api:    %s\n", r.SearchAPIVersion)
			if r.EmbeddingAPIVersion != "" {
				_, _ = fmt.Fprintf(out, "  embedding api: %s\n", r.EmbeddingAPIVersion)
			}
			_, err := fmt.Fprintf(out, "  user agent:    %s\n", r.UserAgent)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	cmd.MarkFlagsMutuallyExclusive("json", "short")

	return cmd
}
