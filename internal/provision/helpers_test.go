package provision

import (
	"io"
	"log/slog"
	"testing"
	"time"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/search/searchtest"
)

var (
	_ Service        = (*searchtest.Service)(nil)
	_ ContainerStore = (*searchtest.Containers)(nil)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		StorageConnectionString:        "DefaultEndpointsProtocol=https;AccountName=docs;AccountKey=a2V5",
		Container:                      "documents",
		KnowledgeStoreConnectionString: "DefaultEndpointsProtocol=https;AccountName=ks;AccountKey=a2V5",
		EmbeddingEndpoint:              "https://skills.example.com/api/embed",
		Dimensions:                     1536,
		PollInterval:                   time.Millisecond,
		Settle: cerrors.RetryConfig{
			MaxRetries:   5,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Logger: quietLogger(),
	}
}

type fixture struct {
	svc        *searchtest.Service
	containers *searchtest.Containers
	orch       *Orchestrator
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	opts := testOptions()
	for _, m := range mutate {
		m(&opts)
	}
	svc := searchtest.NewService()
	containers := searchtest.NewContainers()
	return &fixture{svc: svc, containers: containers, orch: New(svc, containers, opts)}
}
