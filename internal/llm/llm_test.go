package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSummaryPrompt(t *testing.T) {
	system, user := buildSummaryPrompt("  Ada Lovelace\nAnalyst, Analytical Engine  ")

	assert.Contains(t, system, "first person")
	assert.Contains(t, system, "at most 10")
	assert.True(t, strings.HasPrefix(user, "Here is my resume:"))
	assert.Contains(t, user, "Ada Lovelace\nAnalyst, Analytical Engine")
}

func TestBuildSummaryPromptContent(t *testing.T) {
	content := strings.Repeat("x", 10000)
	_, user := buildSummaryPrompt(content)
	assert.Contains(t, user, content)
}

func TestBuildExamplesPrompt(t *testing.T) {
	system, user := buildExamplesPrompt("- I am Ada\n- I build engines")

	assert.Contains(t, system, ExampleSeparator)
	assert.Contains(t, system, "exactly 5")
	assert.Contains(t, system, "300 characters")
	assert.Contains(t, user, "<CV SUMMARY>\n- I am Ada\n- I build engines\n</CV SUMMARY>")
}

func TestSplitExamples(t *testing.T) {
	t.Run("separator with blanks", func(t *testing.T) {
		text := "Hi [Name], first.\nBest,\n[Your Name]\n———  \nHey [Name], second.\n———\n\n———"
		got := SplitExamples(text)
		assert.Equal(t, []string{
			"Hi [Name], first.\nBest,\n[Your Name]",
			"Hey [Name], second.",
		}, got)
	})

	t.Run("no separator", func(t *testing.T) {
		assert.Equal(t, []string{"only one"}, SplitExamples(" only one "))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, SplitExamples("  "))
	})
}

func TestStripFencing(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello  ", "hello"},
		{"fenced with language", "```text\nhello\n```", "hello"},
		{"fenced bare", "```\n- a\n- b\n```\n", "- a\n- b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFencing(tt.in))
		})
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("sk-ant-test", "claude-sonnet-4-5")
	assert.NotNil(t, c.api)
	assert.Equal(t, "claude-sonnet-4-5", string(c.model))
}
