package rag

import (
	"context"
	"fmt"
	"strings"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/llm"
)

const systemPrompt = "You are a helpful assistant that answers questions about members based on their messages. " +
	"Answer using only the information in the context below. If the context does not contain enough " +
	"information to answer, say so plainly instead of guessing. Attribute facts to members by name " +
	"and keep the answer concise."

// Composition is a generated answer together with the passages it was grounded on.
type Composition struct {
	Answer  string
	Sources []Candidate
	Model   string
	Usage   llm.Usage
}

// Composer builds the grounded prompt and asks the generator for an answer.
type Composer struct {
	generator Generator
	params    llm.ChatParams
}

// NewComposer creates a composer that calls generator with params.
func NewComposer(generator Generator, params llm.ChatParams) *Composer {
	return &Composer{generator: generator, params: params}
}

// BuildMessages renders the system and user messages for question over sources.
// Each source is one line: "- [Author] text (relevance: 0.87)", or similarity
// when the source was not reranked.
func (c *Composer) BuildMessages(question string, sources []Candidate) []llm.Message {
	var b strings.Builder
	b.WriteString("Context from member messages:\n")
	if len(sources) == 0 {
		b.WriteString("(no relevant messages were found)\n")
	}
	for _, src := range sources {
		text := strings.Join(strings.Fields(src.Passage.Text), " ")
		if src.Scored {
			fmt.Fprintf(&b, "- [%s] %s (relevance: %.2f)\n", src.Passage.AuthorName, text, src.Relevance.Float64())
		} else {
			fmt.Fprintf(&b, "- [%s] %s (similarity: %.2f)\n", src.Passage.AuthorName, text, src.Similarity)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", question)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// Compose generates an answer for question grounded on sources.
func (c *Composer) Compose(ctx context.Context, question string, sources []Candidate) (Composition, error) {
	logger := contextutil.LoggerFromContext(ctx)
	messages := c.BuildMessages(question, sources)

	logger.InfoContext(ctx, "sending request to LLM",
		"sources", len(sources),
		"user_message_length", len(messages[1].Content),
	)
	logger.DebugContext(ctx, "LLM messages", "system_prompt", messages[0].Content, "user_message", messages[1].Content)

	completion, err := c.generator.Complete(ctx, messages, c.params)
	if err != nil {
		return Composition{}, err
	}

	logger.InfoContext(ctx, "received LLM response",
		"answer_length", len(completion.Content),
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens,
	)

	return Composition{
		Answer:  completion.Content,
		Sources: sources,
		Model:   completion.Model,
		Usage:   completion.Usage,
	}, nil
}
