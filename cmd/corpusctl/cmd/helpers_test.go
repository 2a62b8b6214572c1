package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusctl/internal/config"
	"github.com/Aman-CERP/corpusctl/internal/manifest"
	"github.com/Aman-CERP/corpusctl/internal/search/searchtest"
)

var envKeys = []string{
	"AZURE_SEARCH_SERVICE_ENDPOINT", "AZURE_SEARCH_ADMIN_KEY", "AZURE_SEARCH_API_KEY", "AZURE_SEARCH_API_VERSION",
	"AZURE_STORAGE_CONNECTION_STRING", "AZURE_STORAGE_CONTAINER", "AZURE_KNOWLEDGE_STORE_STORAGE_CONNECTION_STRING",
	"AZURE_SEARCH_EMBEDDING_SKILL_ENDPOINT", "CORPUSCTL_EMBEDDING_DIMENSIONS", "AZURE_COGNITIVE_SERVICES_KEY",
	"AZURE_OPENAI_API_KEY", "OPENAI_API_KEY", "CORPUSCTL_EMBEDDING_PROVIDER", "AZURE_OPENAI_ENDPOINT",
	"OPENAI_DEPLOYMENT_ENDPOINT", "AZURE_OPENAI_API_VERSION", "AZURE_OPENAI_EMBEDDING_DEPLOYMENT",
	"OPENAI_EMBEDDING_MODEL_NAME", "CORPUSCTL_POLL_INTERVAL", "CORPUSCTL_SETTLE_TIMEOUT", "CORPUSCTL_PARALLELISM",
	"CORPUSCTL_SKILL_ADDR", "CORPUSCTL_SKILL_API_KEY", "CORPUSCTL_LOG_LEVEL", "CORPUSCTL_LOG_FILE", "CORPUSCTL_STATE_DIR",
}

const projectConfig = `search:
  endpoint: https://svc.search.windows.net
  admin_key: admin-secret
storage:
  connection_string: DefaultEndpointsProtocol=https;AccountName=src;AccountKey=a2V5
  container: docs
knowledge_store:
  connection_string: DefaultEndpointsProtocol=https;AccountName=ks;AccountKey=a2V5
embedding:
  skill_endpoint: https://skill.example.com/api/embed
provisioning:
  poll_interval: 1ms
  settle_timeout: 1s
logging:
  level: error
`

// harness runs commands against an in-memory search service.
type harness struct {
	t          *testing.T
	dir        string
	stateDir   string
	svc        *searchtest.Service
	containers *searchtest.Containers
	app        *app
	stderr     bytes.Buffer
}

func newHarness(t *testing.T, projectYAML string) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range envKeys {
		t.Setenv(k, "")
	}

	h := &harness{
		t:          t,
		dir:        t.TempDir(),
		stateDir:   t.TempDir(),
		svc:        searchtest.NewService(),
		containers: searchtest.NewContainers("hrchunkindex", "finchunkindex"),
	}
	if projectYAML != "" {
		projectYAML += "state:\n  dir: " + h.stateDir + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(h.dir, config.ProjectConfigFile), []byte(projectYAML), 0o600))
	}

	h.app = newApp()
	h.app.backends = func(*config.Config, *slog.Logger) (Backends, error) {
		return Backends{Service: h.svc, Containers: h.containers}, nil
	}
	return h
}

// run executes one command line and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout bytes.Buffer
	h.stderr.Reset()

	cmd := newRootCmd(h.app)
	cmd.SetOut(&stdout)
	cmd.SetErr(&h.stderr)
	cmd.SetArgs(append([]string{"--dir", h.dir, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		_ = h.app.after()
	}
	return stdout.String(), err
}

func (h *harness) manifests() []manifest.Record {
	h.t.Helper()
	store, err := manifest.Open(filepath.Join(h.stateDir, "manifests.db"))
	require.NoError(h.t, err)
	defer func() { _ = store.Close() }()

	recs, err := store.List(context.Background())
	require.NoError(h.t, err)
	return recs
}
