package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ExampleSeparator divides connection request examples in model output.
const ExampleSeparator = "———"

// Client wraps the Anthropic API for resume summaries and connection
// request examples.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSummaryPrompt constructs the prompts that turn resume text into
// first-person talking points.
func buildSummaryPrompt(resume string) (system string, user string) {
	system = `You summarize resumes for professional networking. Write in the first person, as the resume's owner.

Start with the owner's first name. Then cover, as short bullet points (at most 10):
- Notable projects or research
- Relevant courses or academic achievements
- Past experience and roles
- Key interests or skills
- Conversation starters such as sports, volunteering, study abroad or clubs

Write "I am a research engineer at ...", never "The user is ...".
Return only the bullet list, no headings or commentary.`

	user = "Here is my resume:\n\n" + strings.TrimSpace(resume)
	return
}

// buildExamplesPrompt constructs the prompts for five connection request
// templates grounded in the summary.
func buildExamplesPrompt(summary string) (system string, user string) {
	system = `You write LinkedIn connection request templates.

The sender's background is given in <CV SUMMARY>...</CV SUMMARY>. Use it only for first-person details about the sender.
Refer to the recipient only with placeholders such as [Name], [Company Name] and [LinkedIn Profile Experience]; never fill them from the summary.

Rules:
- Write exactly 5 templates, 1-2 sentences each, under 300 characters
- Separate templates with the symbol "` + ExampleSeparator + `"
- Do not start with "I noticed" or "I saw"
- End each template with "Best," and "[Your Name]" on separate lines
- No extra commentary`

	var sb strings.Builder
	sb.WriteString("My CV summary, for first-person details only:\n")
	sb.WriteString("<CV SUMMARY>\n")
	sb.WriteString(strings.TrimSpace(summary))
	sb.WriteString("\n</CV SUMMARY>")
	user = sb.String()
	return
}

// SummarizeResume returns a first-person summary of the resume text.
func (c *Client) SummarizeResume(ctx context.Context, resume string) (string, error) {
	if strings.TrimSpace(resume) == "" {
		return "", fmt.Errorf("resume text is empty")
	}
	systemPrompt, userPrompt := buildSummaryPrompt(resume)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return "", err
	}
	return text, nil
}

// ConnectionExamples generates example connection request templates from a
// resume summary.
func (c *Client) ConnectionExamples(ctx context.Context, summary string) ([]string, error) {
	systemPrompt, userPrompt := buildExamplesPrompt(summary)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return nil, err
	}
	examples := SplitExamples(text)
	if len(examples) == 0 {
		return nil, fmt.Errorf("no connection examples in API response")
	}
	return examples, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFencing(text), nil
}

// stripFencing removes a surrounding markdown code fence, if present.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// SplitExamples splits model output on ExampleSeparator and drops blanks.
func SplitExamples(text string) []string {
	var out []string
	for part := range strings.SplitSeq(text, ExampleSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
