package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pritzvi/linked-out/internal/faults"
)

func TestRegistry_SetGet(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get(ProviderOpenAI)
	assert.False(t, ok)

	require.NoError(t, r.Set(ProviderOpenAI, "  sk-one  "))
	k, ok := r.Get(ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "sk-one", k)

	require.NoError(t, r.Set(ProviderOpenAI, "sk-two"))
	k, _ = r.Get(ProviderOpenAI)
	assert.Equal(t, "sk-two", k)
}

func TestRegistry_SetInvalid(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Set(ProviderGemini, "   "), faults.ErrValidation)
	assert.ErrorIs(t, r.Set("mistral", "key"), faults.ErrValidation)
	assert.Empty(t, r.Providers())
}

func TestRegistry_Environ(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Set(ProviderOpenAI, "sk-openai"))
	require.NoError(t, r.Set(ProviderGemini, "gm-key"))

	assert.Equal(t, []string{"GEMINI_API_KEY=gm-key", "OPENAI_API_KEY=sk-openai"}, r.Environ())
	assert.Equal(t, []Provider{ProviderGemini, ProviderOpenAI}, r.Providers())
}

func TestEnvName(t *testing.T) {
	name, ok := EnvName(ProviderAnthropic)
	assert.True(t, ok)
	assert.Equal(t, "ANTHROPIC_API_KEY", name)

	_, ok = EnvName("other")
	assert.False(t, ok)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********cdef", Mask("sk-abcdef"))
	assert.Equal(t, "***", Mask("abc"))
}
