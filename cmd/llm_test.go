package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pritzvi/linked-out/internal/keys"
)

func TestNewLLMClient(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	assert.Nil(t, newLLMClient())

	viper.Set("anthropic.api_key", "sk-ant-test")
	assert.NotNil(t, newLLMClient())
}

func TestNewKeyRegistry(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "")
	viper.Set("anthropic.api_key", "from-config")

	reg := newKeyRegistry()
	k, ok := reg.Get(keys.ProviderAnthropic)
	require.True(t, ok)
	assert.Equal(t, "from-config", k, "config wins over the environment")
	k, ok = reg.Get(keys.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "sk-openai", k)
	_, ok = reg.Get(keys.ProviderGemini)
	assert.False(t, ok)
}

func TestRegistrySummarizer_NoKey(t *testing.T) {
	s := registrySummarizer{reg: keys.NewRegistry()}
	_, err := s.SummarizeResume(context.Background(), "resume")
	assert.ErrorIs(t, err, errNoAnthropicKey)
	_, err = s.ConnectionExamples(context.Background(), "summary")
	assert.ErrorIs(t, err, errNoAnthropicKey)
}

func TestSummarizeFile_NoLLM(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(path, []byte("Ada Lovelace\nAnalyst"), 0o644))

	_, _, err := summarizeFile(context.Background(), path)
	assert.ErrorIs(t, err, errNoLLM)
}

func TestSummarizeInput_Errors(t *testing.T) {
	dir := testEnv(t)
	viper.Set("anthropic.api_key", "sk-ant-test")

	_, _, err := summarizeInput(filepath.Join(dir, "missing.txt"))
	assert.ErrorContains(t, err, "read resume")

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, _, err = summarizeInput(empty)
	assert.ErrorContains(t, err, "is empty")
}
