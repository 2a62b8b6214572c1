package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/Aman-CERP/corpusctl/internal/async"
	"github.com/Aman-CERP/corpusctl/internal/config"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/search"
	"github.com/Aman-CERP/corpusctl/internal/skill"
	"github.com/Aman-CERP/corpusctl/internal/storage"
	"github.com/Aman-CERP/corpusctl/pkg/version"
)

// Backends are the remote services a command talks to.
type Backends struct {
	Service provision.Service
	// Containers is nil when no knowledge store is configured.
	Containers provision.ContainerStore
}

type backendFactory func(cfg *config.Config, logger *slog.Logger) (Backends, error)

type embedderFactory func(cfg *config.Config) (skill.Embedder, error)

func defaultBackends(cfg *config.Config, logger *slog.Logger) (Backends, error) {
	client, err := search.NewClient(search.Config{
		Endpoint:          cfg.Search.Endpoint,
		AdminKey:          cfg.Search.AdminKey,
		APIVersion:        cfg.Search.APIVersion,
		UserAgent:         version.UserAgent(),
		Timeout:           cfg.Search.Timeout,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return Backends{}, err
	}
	b := Backends{Service: client}

	if cs := cfg.KnowledgeStore.ConnectionString; cs != "" {
		store, err := storage.NewContainerStore(cs, storage.Options{Logger: logger})
		if err != nil {
			return Backends{}, err
		}
		b.Containers = store
	}
	return b, nil
}

func defaultEmbedder(cfg *config.Config) (skill.Embedder, error) {
	e, err := skill.NewOpenAIEmbedder(skill.EmbedderConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BaseURL:    cfg.Embedding.BaseURL,
		APIVersion: cfg.Embedding.APIVersion,
		Deployment: cfg.Embedding.Deployment,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// orchestrator builds an orchestrator reporting to tracker, which may be nil.
func orchestrator(cfg *config.Config, b Backends, tracker *async.Tracker, logger *slog.Logger) *provision.Orchestrator {
	opts := provision.Options{
		StorageConnectionString:        cfg.Storage.ConnectionString,
		Container:                      cfg.Storage.Container,
		KnowledgeStoreConnectionString: cfg.KnowledgeStore.ConnectionString,
		EmbeddingEndpoint:              cfg.Embedding.SkillEndpoint,
		EmbeddingHeaders:               cfg.Embedding.SkillHeaders,
		Dimensions:                     cfg.Embedding.Dimensions,
		CognitiveServicesKey:           cfg.Enrichment.CognitiveServicesKey,
		PollInterval:                   cfg.Provisioning.PollInterval,
		MaxFetchFailures:               cfg.Provisioning.MaxFetchFailures,
		SettleTimeout:                  cfg.Provisioning.SettleTimeout,
		Logger:                         logger,
	}
	if tracker != nil {
		opts.Observer = tracker.Observe
		opts.OnPoll = tracker.Poll
	}
	return provision.New(b.Service, b.Containers, opts)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// validatePrefixes rejects bad prefixes before any lock is taken or any
// resource is touched.
func validatePrefixes(prefixes []string) error {
	var errs []error
	for _, p := range prefixes {
		if err := naming.ValidatePrefix(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
