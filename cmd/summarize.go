package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pritzvi/linked-out/internal/llm"
	"github.com/pritzvi/linked-out/internal/output"
)

var summarizeNoExamples bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <resume.txt>",
	Short: "Summarize a plain-text resume and draft connection notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if summarizeNoExamples {
			client, text, err := summarizeInput(args[0])
			if err != nil {
				return err
			}
			summary, err := client.SummarizeResume(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(ui.Out, summary)
			return nil
		}

		summary, examples, err := summarizeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, output.Cyan("Summary"))
		fmt.Fprintln(ui.Out, summary)
		for i, ex := range examples {
			fmt.Fprintln(ui.Out)
			fmt.Fprintln(ui.Out, output.Cyan(fmt.Sprintf("Example %d (%d chars)", i+1, len([]rune(ex)))))
			fmt.Fprintln(ui.Out, ex)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().BoolVar(&summarizeNoExamples, "summary-only", false, "skip drafting connection note examples")
}

var errNoLLM = errors.New("no LLM configured (set anthropic.api_key or ANTHROPIC_API_KEY)")

func summarizeInput(path string) (*llm.Client, string, error) {
	client := newLLMClient()
	if client == nil {
		return nil, "", errNoLLM
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read resume: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, "", fmt.Errorf("resume %s is empty", path)
	}
	return client, text, nil
}

// summarizeFile summarizes a plain-text resume and drafts example notes.
// A failure drafting examples is reported but does not discard the summary.
func summarizeFile(ctx context.Context, path string) (string, []string, error) {
	client, text, err := summarizeInput(path)
	if err != nil {
		return "", nil, err
	}
	ui.VerboseLog("Summarizing %s", path)
	summary, err := client.SummarizeResume(ctx, text)
	if err != nil {
		return "", nil, fmt.Errorf("summarize resume: %w", err)
	}
	examples, err := client.ConnectionExamples(ctx, summary)
	if err != nil {
		ui.Warning("Could not draft connection examples: %v", err)
		return summary, nil, nil
	}
	return summary, examples, nil
}
