package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"aurora-qa/internal/handlers"
)

const (
	rule             = "================================================================================"
	sourcePreviewLen = 200
)

type askOptions struct {
	url        string
	sources    bool
	evals      bool
	jsonOutput bool
	verbose    bool
	maxSources int
	timeout    time.Duration
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about member messages",
		Long: `Ask a question and print the answer with its confidence.

The question is read from stdin when no argument is given.

Examples:
  aurora ask "What are Fatima's favorite restaurants?"
  aurora ask "Summarize Sophia's messages" --sources
  aurora ask "How many cars does Vikram have?" --verbose --sources
  aurora ask "Summarize Fatima's messages" --evaluations
  echo "Compare Layla and Vikram" | aurora ask --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && cmd.InOrStdin() == os.Stdin && !stdinIsPipe() {
				return cmd.Help()
			}
			question, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runAsk(cmd, opts, question)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8000", "Aurora API base URL")
	cmd.Flags().BoolVar(&opts.sources, "sources", false, "include source messages")
	cmd.Flags().BoolVar(&opts.evals, "evaluations", false, "judge the answer and show evaluation scores")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the raw JSON response")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "show source scores")
	cmd.Flags().IntVar(&opts.maxSources, "max-sources", 0, "maximum number of sources to use (1-500)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "request timeout")
	return cmd
}

func readQuestion(args []string, stdin io.Reader) (string, error) {
	var question string
	if len(args) > 0 {
		question = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read question from stdin: %w", err)
		}
		question = string(data)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}
	return question, nil
}

func runAsk(cmd *cobra.Command, opts *askOptions, question string) error {
	req := handlers.AskRequest{
		Question:           question,
		IncludeSources:     opts.sources,
		IncludeEvaluations: &opts.evals,
	}
	if cmd.Flags().Changed("max-sources") {
		n := opts.maxSources
		req.MaxSources = &n
	}

	var apiErr handlers.ErrorResponse
	resp, err := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.url, "/")).
		SetTimeout(opts.timeout).
		R().
		SetContext(cmd.Context()).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetError(&apiErr).
		Post("/api/v1/ask")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", opts.url, err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode(), resp.String())
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body(), "", "  "); err != nil {
			return fmt.Errorf("failed to format response: %w", err)
		}
		_, err := fmt.Fprintln(out, pretty.String())
		return err
	}

	var answer handlers.AskResponse
	if err := json.Unmarshal(resp.Body(), &answer); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	_, err = fmt.Fprint(out, formatResponse(answer, opts.verbose))
	return err
}

// confidenceLabel bands a confidence the same way the server does.
func confidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "HIGH"
	case confidence >= 0.6:
		return "MODERATE"
	default:
		return "LOW"
	}
}

func formatResponse(resp handlers.AskResponse, verbose bool) string {
	var b strings.Builder
	section := func(title string) {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", rule, title, rule)
	}

	section("ANSWER")
	answer := resp.Answer
	if answer == "" {
		answer = "No answer provided"
	}
	fmt.Fprintf(&b, "%s\n\n", answer)

	section("RELIABILITY METRICS")
	fmt.Fprintf(&b, "Confidence: %s (%.0f%%)\n", confidenceLabel(resp.Confidence), resp.Confidence*100)
	if verbose {
		bd := resp.ConfidenceBreakdown
		fmt.Fprintf(&b, "  sources %.2f | relevance %.2f | specificity %.2f | consistency %.2f\n",
			bd.SourceCount, bd.Relevance, bd.Specificity, bd.Consistency)
	}
	fmt.Fprintf(&b, "Query Type: %s\n", resp.QueryMetadata.QueryType)
	if len(resp.QueryMetadata.MentionedUsers) > 0 {
		fmt.Fprintf(&b, "Users: %s\n", strings.Join(resp.QueryMetadata.MentionedUsers, ", "))
	}
	if resp.Tips != "" {
		fmt.Fprintf(&b, "\nTip: %s\n", resp.Tips)
	}
	b.WriteString("\n")

	u := resp.TokenUsage
	fmt.Fprintf(&b, "Tokens: %d (%d prompt + %d completion)\n", u.TotalTokens, u.PromptTokens, u.CompletionTokens)
	fmt.Fprintf(&b, "Cost: $%.6f\n", u.CostUSD)
	if !resp.Reranked {
		b.WriteString("Reranker: unavailable, retrieval order used\n")
	}
	fmt.Fprintf(&b, "Latency: %.1fms\n\n", resp.LatencyMs)

	if len(resp.Sources) > 0 {
		section(fmt.Sprintf("SOURCES (%d messages)", len(resp.Sources)))
		for i, src := range resp.Sources {
			name := src.UserName
			if name == "" {
				name = "Unknown"
			}
			fmt.Fprintf(&b, "\n[%d] %s\n", i+1, name)
			fmt.Fprintf(&b, "    %s\n", preview(src.Message, sourcePreviewLen))
			if verbose {
				fmt.Fprintf(&b, "    Score: %.4f\n", src.SimilarityScore)
				if src.RerankerScore != nil {
					fmt.Fprintf(&b, "    Reranker: %.4f\n", *src.RerankerScore)
				}
			}
		}
		b.WriteString("\n")
	}

	if ev := resp.Evaluations; ev != nil && len(ev.Scores) > 0 {
		section("EVALUATIONS")
		for _, s := range ev.Scores {
			status := "FAIL"
			if s.Passed {
				status = "PASS"
			}
			fmt.Fprintf(&b, "%s %s: %.2f\n", status, s.Name, s.Score)
			if verbose && s.Reasoning != "" {
				fmt.Fprintf(&b, "   %s\n", s.Reasoning)
			}
		}
		fmt.Fprintf(&b, "\nAverage Score: %.2f\n\n", ev.AverageScore)
	}

	return b.String()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// stdinIsPipe reports whether stdin has piped input.
func stdinIsPipe() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
