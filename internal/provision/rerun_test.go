package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// statusServer serves /status bodies in order (the last repeats) and accepts
// run requests.
func statusServer(t *testing.T, bodies ...string) *search.Client {
	t.Helper()
	var (
		mu   sync.Mutex
		next int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/run"):
			w.WriteHeader(http.StatusAccepted)
		case strings.HasSuffix(r.URL.Path, "/status"):
			mu.Lock()
			body := bodies[next]
			if next < len(bodies)-1 {
				next++
			}
			mu.Unlock()
			_, _ = w.Write([]byte(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := search.NewClient(search.Config{Endpoint: srv.URL, AdminKey: "k", RequestsPerSecond: 1000, Burst: 100})
	require.NoError(t, err)
	return c
}

func TestRerun_OverHTTPWaitsForNewExecution(t *testing.T) {
	// Given: the status still shows yesterday's success right after the run request
	old := `{"status":"running","lastResult":{"status":"success","startTime":"2026-01-01T00:00:00Z"}}`
	client := statusServer(t,
		old, // before the run request
		old, // first poll
		`{"status":"running","lastResult":{"status":"inProgress","startTime":"2026-01-02T00:00:00Z"}}`,
		`{"status":"running","lastResult":{"status":"transientFailure","startTime":"2026-01-02T00:00:00Z","errorMessage":"throttled"}}`,
	)
	orch := New(client, nil, testOptions())

	// When: rerunning
	job, err := orch.Rerun(context.Background(), "hr", schema.VariantDocument)

	// Then: the new execution decides the outcome
	require.NoError(t, err)
	assert.Equal(t, search.JobTransientFailure, job.Status)
	assert.Equal(t, 3, job.Polls)
}

func TestRerun_FirstRunEver(t *testing.T) {
	// Given: an indexer that has never executed
	client := statusServer(t,
		`{"status":"running","lastResult":null}`,
		`{"status":"running","lastResult":{"status":"success","startTime":"2026-01-02T00:00:00Z"}}`,
	)
	orch := New(client, nil, testOptions())

	job, err := orch.Rerun(context.Background(), "hr", schema.VariantDocument)

	require.NoError(t, err)
	assert.Equal(t, search.JobSuccess, job.Status)
	assert.Equal(t, 1, job.Polls)
}
