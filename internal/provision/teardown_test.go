package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/naming"
	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
	"github.com/Aman-CERP/corpusctl/internal/search/searchtest"
)

func TestCreateThenDelete_LeavesNothing(t *testing.T) {
	for _, variant := range []schema.Variant{schema.VariantDocument, schema.VariantChunk} {
		t.Run(string(variant), func(t *testing.T) {
			// Given: a provisioned chain with its projection container
			f := newFixture(t)
			res, err := f.orch.CreateResources(context.Background(), "hr", variant)
			require.NoError(t, err)
			if res.Manifest.Container != "" {
				f.containers.Add(res.Manifest.Container)
			}

			// When: tearing it down
			err = f.orch.DeleteResources(context.Background(), "hr", variant)

			// Then: nothing under the prefix is reachable
			require.NoError(t, err)
			for role, name := range res.Manifest.Roles() {
				switch role {
				case naming.RoleContainer, naming.RoleImageContainer:
					assert.False(t, f.containers.Has(name), name)
				default:
					for _, kind := range []search.Kind{search.KindIndex, search.KindDataSource, search.KindSkillset, search.KindIndexer} {
						ok, err := f.svc.Exists(context.Background(), kind, name)
						require.NoError(t, err)
						assert.False(t, ok, "%s %s", kind, name)
					}
				}
			}
			assert.Zero(t, f.svc.Count())

			states, err := f.orch.Inspect(context.Background(), "hr", variant)
			require.NoError(t, err)
			for _, st := range states {
				assert.False(t, st.Exists, st.Name)
				assert.NoError(t, st.Err)
			}
		})
	}
}

func TestDeleteResources_Order(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateResources(context.Background(), "hr", schema.VariantDocument)
	require.NoError(t, err)
	f.containers.Add("hrchunkindex")

	require.NoError(t, f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument))

	var deletes []search.Kind
	for _, c := range f.svc.Calls() {
		if c.Op == searchtest.OpDelete {
			deletes = append(deletes, c.Kind)
		}
	}
	assert.Equal(t, []search.Kind{search.KindIndexer, search.KindDataSource, search.KindIndex, search.KindSkillset}, deletes)
	assert.Equal(t, []string{"hrchunkindex", "hrchunkindeximages"}, f.containers.Deleted())
}

func TestDeleteResources_Idempotent(t *testing.T) {
	// Given: a prefix that was provisioned and torn down
	f := newFixture(t)
	_, err := f.orch.CreateResources(context.Background(), "hr", schema.VariantDocument)
	require.NoError(t, err)
	require.NoError(t, f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument))

	// When: tearing it down twice more
	first := f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument)
	second := f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument)

	// Then: both succeed
	assert.NoError(t, first)
	assert.NoError(t, second)
}

func TestDeleteResources_NeverProvisioned(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.orch.DeleteResources(context.Background(), "ghost", schema.VariantChunk))
}

func TestDeleteResources_CollectsFailuresAndContinues(t *testing.T) {
	// Given: a chain whose data source delete fails unexpectedly
	f := newFixture(t)
	_, err := f.orch.CreateResources(context.Background(), "hr", schema.VariantDocument)
	require.NoError(t, err)
	boom := cerrors.New(cerrors.ErrCodeServiceUnavailable, "busy", nil)
	f.svc.FailNext(searchtest.OpDelete, nil, boom)

	// When: tearing down
	err = f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument)

	// Then: the failure is reported and every other resource is still deleted
	require.Error(t, err)
	tes := TeardownErrors(err)
	require.Len(t, tes, 1)
	assert.Equal(t, naming.RoleDataSource, tes[0].Role)
	assert.Equal(t, "hr-datasource", tes[0].Resource)
	assert.True(t, errors.Is(err, boom))

	assert.False(t, f.svc.Has(search.KindIndexer, "hr-indexer"))
	assert.False(t, f.svc.Has(search.KindIndex, "hr-index"))
	assert.False(t, f.svc.Has(search.KindSkillset, "hr-skillset"))
	assert.True(t, f.svc.Has(search.KindDataSource, "hr-datasource"))

	// And: a rerun finishes the job
	require.NoError(t, f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument))
	assert.Zero(t, f.svc.Count())
}

func TestDeleteResources_ContainerFailure(t *testing.T) {
	f := newFixture(t)
	f.containers.FailNext(cerrors.New(cerrors.ErrCodeUnauthorized, "denied", nil))

	err := f.orch.DeleteResources(context.Background(), "hr", schema.VariantDocument)

	tes := TeardownErrors(err)
	require.Len(t, tes, 1)
	assert.Equal(t, naming.RoleContainer, tes[0].Role)
	assert.Equal(t, "hrchunkindex", tes[0].Resource)
}

func TestDeleteResources_ChunkChainKeepsContainers(t *testing.T) {
	f := newFixture(t)
	f.containers.Add("hrchunkindex")

	require.NoError(t, f.orch.DeleteResources(context.Background(), "hr", schema.VariantChunk))
	assert.True(t, f.containers.Has("hrchunkindex"))
	assert.Empty(t, f.containers.Deleted())
}

func TestDeleteResources_NilContainerStore(t *testing.T) {
	svc := searchtest.NewService()
	orch := New(svc, nil, testOptions())
	assert.NoError(t, orch.DeleteResources(context.Background(), "hr", schema.VariantDocument))
}

func TestDeleteResources_InvalidPrefix(t *testing.T) {
	f := newFixture(t)
	err := f.orch.DeleteResources(context.Background(), "", schema.VariantDocument)
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidPrefix))
	assert.Empty(t, f.svc.Calls())
}

func TestDeleteResources_UsesCreationNames(t *testing.T) {
	// Given: a chain provisioned under an unusual prefix
	f := newFixture(t)
	res, err := f.orch.CreateResources(context.Background(), "Contoso_HR.v2", schema.VariantDocument)
	require.NoError(t, err)

	// When: tearing down by prefix alone
	require.NoError(t, f.orch.DeleteResources(context.Background(), "Contoso_HR.v2", schema.VariantDocument))

	// Then: the same names were targeted
	var names []string
	for _, c := range f.svc.Calls() {
		if c.Op == searchtest.OpDelete {
			names = append(names, c.Name)
		}
	}
	assert.ElementsMatch(t, []string{res.Manifest.Index, res.Manifest.DataSource, res.Manifest.Skillset, res.Manifest.Indexer}, names)
}

func TestCorpus_CreateAndDelete(t *testing.T) {
	// Given: an empty service
	f := newFixture(t)

	// When: provisioning a full corpus
	res, err := f.orch.CreateCorpus(context.Background(), "hr")

	// Then: both chains exist
	require.NoError(t, err)
	require.NotNil(t, res.Chunk)
	assert.Equal(t, "hr-index", res.Document.Manifest.Index)
	assert.Equal(t, "hr-chunk-index", res.Chunk.Manifest.Index)
	assert.Len(t, f.svc.Names(search.KindIndex), 2)

	// And: deleting the corpus removes everything
	f.containers.Add(res.Document.Manifest.Container)
	require.NoError(t, f.orch.DeleteCorpus(context.Background(), "hr"))
	assert.Zero(t, f.svc.Count())
	assert.False(t, f.containers.Has("hrchunkindex"))
}

func TestCorpus_SkipsChunkChainWhenDocumentJobFails(t *testing.T) {
	f := newFixture(t)
	f.svc.ScriptStatus("hr-indexer", search.JobFailed)

	res, err := f.orch.CreateCorpus(context.Background(), "hr")

	require.NoError(t, err)
	assert.Nil(t, res.Chunk)
	assert.False(t, f.svc.Has(search.KindIndex, "hr-chunk-index"))
}

func TestCorpus_DeleteJoinsBothChains(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateCorpus(context.Background(), "hr")
	require.NoError(t, err)
	boom := cerrors.New(cerrors.ErrCodeServiceUnavailable, "busy", nil)
	f.svc.FailNext(searchtest.OpDelete, boom)

	err = f.orch.DeleteCorpus(context.Background(), "hr")

	tes := TeardownErrors(err)
	require.Len(t, tes, 1)
	assert.Equal(t, "hr-chunk-indexer", tes[0].Resource)
	assert.False(t, f.svc.Has(search.KindIndex, "hr-index"))
}

func TestDeleteResources_ChunkSuffixedPrefixRejected(t *testing.T) {
	// Given: the chunk chain of "x"
	f := newFixture(t)
	_, err := f.orch.CreateResources(context.Background(), "x", schema.VariantChunk)
	require.NoError(t, err)

	// When: deleting the document chain of "x-chunk"
	err = f.orch.DeleteResources(context.Background(), "x-chunk", schema.VariantDocument)

	// Then: nothing is deleted
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidPrefix))
	assert.True(t, f.svc.Has(search.KindIndex, "x-chunk-index"))
	assert.True(t, f.svc.Has(search.KindIndexer, "x-chunk-indexer"))
}
