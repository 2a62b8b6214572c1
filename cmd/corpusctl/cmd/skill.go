package cmd

import (
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusctl/internal/skill"
)

func newSkillCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Run the custom embedding skill",
	}
	cmd.AddCommand(newSkillServeCmd(a))
	return cmd
}

func newSkillServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chunk-and-embed web API skill",
		Long: `Serve the web API skill the document skillset calls for each document.

Each record's text is cleaned, truncated to skill_server.max_text_length,
split into overlapping chunks and embedded. The search service must reach the
server at embedding.skill_endpoint, which should end in /api/embed.`,
		Example: `  corpusctl skill serve --addr :8088`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := cfg.RequireEmbedder(); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.SkillServer.Addr
			}

			e, err := a.newEmbedder(cfg)
			if err != nil {
				return err
			}
			cached := skill.NewCachedEmbedder(e, cfg.SkillServer.CacheSize)
			h := skill.NewHandler(cached, skill.Options{
				ChunkSize:     cfg.SkillServer.ChunkSize,
				ChunkOverlap:  cfg.SkillServer.ChunkOverlap,
				MaxTextLength: cfg.SkillServer.MaxTextLength,
				APIKey:        cfg.SkillServer.APIKey,
				Logger:        a.logger,
			})

			p := a.printer(cmd)
			err = skill.Serve(cmd.Context(), addr, h, a.logger, func(bound net.Addr) {
				p.Success("Skill server listening on %s", bound)
				p.Info("model: %s (%d dimensions)", e.ModelName(), e.Dimensions())
			})
			a.logger.Info("skill_cache_stats", slog.Int("entries", cached.Len()))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default skill_server.addr)")

	return cmd
}
