package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

func TestSkillServe_HasAddrFlag(t *testing.T) {
	cmd := NewRootCmd()

	serve, _, err := cmd.Find([]string{"skill", "serve"})
	require.NoError(t, err)

	flag := serve.Flags().Lookup("addr")
	require.NotNil(t, flag)
	assert.Empty(t, flag.DefValue)
}

func TestSkillServe_RequiresEmbeddingKey(t *testing.T) {
	h := newHarness(t, projectConfig)

	_, err := h.run("skill", "serve", "--addr", "127.0.0.1:0")

	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeCredentialMissing))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestSkillServe_AzureNeedsDeployment(t *testing.T) {
	h := newHarness(t, projectConfig)
	t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://aoai.openai.azure.com")

	_, err := h.run("skill", "serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
}
