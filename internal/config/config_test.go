package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text2sql", settings.AppName)
	assert.Equal(t, "mock", settings.LLMMode)
	assert.True(t, settings.UseMockDB)
	assert.Equal(t, 30*time.Second, settings.LLMTimeout)
	assert.Equal(t, 5, settings.RAGTopK)
	assert.Equal(t, "data/schema_kb.json", settings.SchemaKBPath)
	assert.False(t, settings.ReconstructOnEmptyRetrieval)
	assert.Equal(t, 5*time.Second, settings.MySQLConnectTimeout)
	assert.Equal(t, 30*time.Second, settings.MySQLReadTimeout)
	assert.Equal(t, 10, settings.MySQLMaxOpenConns)
	assert.Equal(t, 5, settings.MySQLMaxIdleConns)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("TEXT2SQL_LLM_MODE", "real")
	t.Setenv("TEXT2SQL_RAG_TOP_K", "9")
	t.Setenv("TEXT2SQL_RECONSTRUCT_ON_EMPTY_RETRIEVAL", "true")

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "real", settings.LLMMode)
	assert.Equal(t, 9, settings.RAGTopK)
	assert.True(t, settings.ReconstructOnEmptyRetrieval)
}

func TestLoadReturnsErrorForMissingConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/does-not-exist.yaml")
	require.Error(t, err)
}

func TestLoadMergesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("app_name: custom-text2sql\n"), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-text2sql", settings.AppName)
}
