package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/schema"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Clone(), body})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL + "/", AdminKey: "secret", RequestsPerSecond: 1000, Burst: 100})
	require.NoError(t, err)
	return c, &reqs
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{AdminKey: "k"})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeConfigInvalid))

	_, err = NewClient(Config{Endpoint: "https://svc.search.windows.net"})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeCredentialMissing))

	_, err = NewClient(Config{Endpoint: "not a url", AdminKey: "k"})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeConfigInvalid))
}

func TestCreateIndex_SendsCreateOnlyPUT(t *testing.T) {
	// Given: a service that accepts creates
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	ix, err := schema.BuildIndex("hr-index", schema.DocumentSchema{})
	require.NoError(t, err)

	// When: creating the index
	err = c.CreateIndex(context.Background(), ix)

	// Then: one PUT with create-only headers and the definition body is sent
	require.NoError(t, err)
	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/indexes/hr-index", got.Path)
	assert.Equal(t, "api-version="+DefaultAPIVersion, got.Query)
	assert.Equal(t, "*", got.Header.Get("If-None-Match"))
	assert.Equal(t, "secret", got.Header.Get("api-key"))
	assert.NotEmpty(t, got.Header.Get("client-request-id"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))

	var sent schema.Index
	require.NoError(t, json.Unmarshal(got.Body, &sent))
	assert.Equal(t, "hr-index", sent.Name)
	assert.Equal(t, "document_id", sent.KeyField())
}

func TestCreate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		code      string
		retryable bool
	}{
		{"precondition failed is conflict", http.StatusPreconditionFailed, "exists", cerrors.ErrCodeResourceConflict, false},
		{"conflict", http.StatusConflict, "exists", cerrors.ErrCodeResourceConflict, false},
		{"missing reference", http.StatusBadRequest, "Data source 'x' does not exist", cerrors.ErrCodeReferenceNotFound, false},
		{"bad schema", http.StatusBadRequest, "Field 'a' is invalid", cerrors.ErrCodeRequestRejected, false},
		{"unauthorized", http.StatusForbidden, "denied", cerrors.ErrCodeUnauthorized, false},
		{"throttled", http.StatusTooManyRequests, "slow down", cerrors.ErrCodeRateLimited, true},
		{"server error", http.StatusServiceUnavailable, "busy", cerrors.ErrCodeServiceUnavailable, true},
		{"teapot", http.StatusTeapot, "?", cerrors.ErrCodeUnexpectedResponse, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, "SomeCode", tt.msg)
			})
			err := c.CreateDataSource(context.Background(), schema.DataSource{Name: "hr-datasource"})
			require.Error(t, err)
			assert.True(t, cerrors.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, tt.retryable, cerrors.IsRetryable(err))
		})
	}
}

func TestDelete_NotFound(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "ResourceNotFound", "No indexer with the name 'x' was found")
	})

	err := c.Delete(context.Background(), KindIndexer, "x")

	require.Error(t, err)
	assert.True(t, cerrors.IsNotFound(err))
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/indexers/x", (*reqs)[0].Path)
}

func TestDelete_NoContent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.Delete(context.Background(), KindSkillset, "s"))
}

func TestExists(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indexes/present" {
			_, _ = w.Write([]byte(`{"name":"present"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	ok, err := c.Exists(context.Background(), KindIndex, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), KindIndex, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"name":"a-index"},{"name":"b-index"}]}`))
	})

	names, err := c.List(context.Background(), KindIndex)

	require.NoError(t, err)
	assert.Equal(t, []string{"a-index", "b-index"}, names)
	assert.Contains(t, (*reqs)[0].Query, "%24select=name")
}

func TestIndexerStatus(t *testing.T) {
	// Given: a service reporting an in-progress run
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "running",
			"lastResult": {
				"status": "inProgress",
				"startTime": "2024-01-02T03:04:05Z",
				"itemsProcessed": 12,
				"itemsFailed": 1
			}
		}`))
	})

	// When: fetching status
	st, err := c.IndexerStatus(context.Background(), "hr-indexer")

	// Then: the raw values are decoded and normalized
	require.NoError(t, err)
	assert.Equal(t, "/indexers/hr-indexer/status", (*reqs)[0].Path)
	assert.Equal(t, JobRunning, st.Status)
	assert.Equal(t, "inProgress", st.LastResult)
	assert.Equal(t, 12, st.ItemsProcessed)
	assert.Equal(t, 1, st.ItemsFailed)
	assert.Equal(t, 2024, st.StartTime.Year())
	assert.True(t, st.EndTime.IsZero())
}

func TestIndexerStatus_NoRunYet(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"running","lastResult":null}`))
	})

	st, err := c.IndexerStatus(context.Background(), "i")

	require.NoError(t, err)
	assert.Equal(t, JobNotStarted, st.Status)
}

func TestIndexerStatus_BadBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := c.IndexerStatus(context.Background(), "i")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeUnexpectedResponse))
}

func TestRunIndexer(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	require.NoError(t, c.RunIndexer(context.Background(), "i"))
	assert.Equal(t, http.MethodPost, (*reqs)[0].Method)
	assert.Equal(t, "/indexers/i/run", (*reqs)[0].Path)
}

func TestDo_CancelledContext(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Exists(ctx, KindIndex, "x")

	require.Error(t, err)
	assert.True(t, IsContextError(err))
	assert.False(t, cerrors.IsRetryable(err))
	assert.Empty(t, *reqs)
}

func TestDo_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c, err := NewClient(Config{Endpoint: endpoint, AdminKey: "k"})
	require.NoError(t, err)

	_, err = c.IndexerStatus(context.Background(), "i")
	require.Error(t, err)
	assert.True(t, cerrors.IsRetryable(err))
}

func TestClient_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL, AdminKey: "secret", UserAgent: "corpusctl/test"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(context.Background(), KindIndex, "hr-index"))

	assert.Equal(t, "corpusctl/test", got)
}
