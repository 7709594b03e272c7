package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/llm"
)

// Evaluation names reported in EvaluationResults.
const (
	EvalAnswerRelevance    = "answer_relevance"
	EvalGroundedness       = "groundedness"
	EvalContextRelevance   = "context_relevance"
	EvalEntityAccuracy     = "entity_accuracy"
	EvalAnswerCompleteness = "answer_completeness"
)

const (
	judgeSystemPrompt = "You are an evaluation assistant. Provide scores and reasoning based on the given criteria."
	judgeFormat       = "Respond with only: SCORE: <number>, REASONING: <brief reason>"
	neutralScore      = 0.5
)

var (
	scoreLabelPattern   = regexp.MustCompile(`(?i)SCORE:\s*([0-9]*\.?[0-9]+)`)
	leadingScorePattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)[,\s]+`)
	anyNumberPattern    = regexp.MustCompile(`\b([0-9]*\.?[0-9]+)\b`)
	reasoningPattern    = regexp.MustCompile(`(?i)REASONING:\s*([^\n]+)`)
)

// EvaluationScore is one judged quality dimension of an answer.
type EvaluationScore struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	Passed    bool    `json:"passed"`
}

// EvaluationResults are all evaluations of one answer.
type EvaluationResults struct {
	Scores       []EvaluationScore `json:"evaluations"`
	AverageScore float64           `json:"average_score"`
	AllPassed    bool              `json:"all_passed"`
	EvaluatedAt  time.Time         `json:"timestamp"`
}

type judge struct {
	name      string
	passScore float64
	prompt    func(question, answer, context string) string
}

var judges = []judge{
	{
		name:      EvalAnswerRelevance,
		passScore: 0.7,
		prompt: func(question, answer, _ string) string {
			return fmt.Sprintf("Question: %s\nAnswer: %s\n\n"+
				"Does the answer directly address the question? Score 0-1 where:\n"+
				"0 = Completely irrelevant or doesn't address question\n"+
				"1 = Directly and completely answers the question\n\n%s", question, answer, judgeFormat)
		},
	},
	{
		name:      EvalGroundedness,
		passScore: 0.8,
		prompt: func(question, answer, context string) string {
			return fmt.Sprintf("Question: %s\nAnswer: %s\nRetrieved Context:\n%s\n\n"+
				"Is the answer supported by the context? Score 0-1 where:\n"+
				"0 = Answer contradicts context or is not mentioned (hallucination)\n"+
				"1 = Answer is fully supported by context\n\n%s", question, answer, context, judgeFormat)
		},
	},
	{
		name:      EvalContextRelevance,
		passScore: 0.7,
		prompt: func(question, _, context string) string {
			return fmt.Sprintf("Question: %s\nRetrieved Messages:\n%s\n\n"+
				"Are the retrieved messages relevant to answering the question? Score 0-1 where:\n"+
				"0 = Messages are irrelevant\n"+
				"1 = Messages are highly relevant and helpful\n\n%s", question, context, judgeFormat)
		},
	},
	{
		name:      EvalEntityAccuracy,
		passScore: 0.9,
		prompt: func(_, answer, context string) string {
			return fmt.Sprintf("Answer: %s\nContext:\n%s\n\n"+
				"Check if named entities (people, numbers, dates, places) in the answer are accurate based on context.\n"+
				"Score 0-1 where:\n"+
				"0 = Contains factually incorrect entities\n"+
				"1 = All entities are accurate\n\n%s", answer, context, judgeFormat)
		},
	},
}

// Evaluator grades a generated answer with LLM judges and a completeness heuristic.
type Evaluator struct {
	generator Generator
	params    llm.ChatParams
	now       func() time.Time
}

// NewEvaluator creates an evaluator that asks generator to judge answers.
func NewEvaluator(generator Generator) *Evaluator {
	return &Evaluator{
		generator: generator,
		params:    llm.ChatParams{Temperature: 0.1, MaxTokens: 200},
		now:       time.Now,
	}
}

// Evaluate judges answer against question and the sources it was grounded on.
// Judges run concurrently. A judge that fails scores 0 and does not pass; the
// joined judge errors are returned next to complete results.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string, sources []Candidate) (EvaluationResults, error) {
	logger := contextutil.LoggerFromContext(ctx)

	lines := make([]string, len(sources))
	for i, src := range sources {
		lines[i] = "- " + src.Passage.Text
	}
	contextText := strings.Join(lines, "\n")

	scores := make([]EvaluationScore, len(judges)+1)
	errs := make([]error, len(judges))

	var g errgroup.Group
	for i, j := range judges {
		g.Go(func() error {
			scores[i], errs[i] = e.runJudge(ctx, j, question, answer, contextText)
			return nil
		})
	}
	_ = g.Wait()
	scores[len(judges)] = completeness(answer)

	results := EvaluationResults{Scores: scores, AllPassed: true, EvaluatedAt: e.now()}
	var sum float64
	for _, s := range scores {
		sum += s.Score
		results.AllPassed = results.AllPassed && s.Passed
	}
	results.AverageScore = sum / float64(len(scores))

	err := errors.Join(errs...)
	logger.InfoContext(ctx, "answer evaluated",
		"average_score", results.AverageScore,
		"all_passed", results.AllPassed,
		"failed_judges", countErrors(errs),
	)
	return results, err
}

func (e *Evaluator) runJudge(ctx context.Context, j judge, question, answer, contextText string) (EvaluationScore, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: judgeSystemPrompt},
		{Role: llm.RoleUser, Content: j.prompt(question, answer, contextText)},
	}
	completion, err := e.generator.Complete(ctx, messages, e.params)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "evaluation failed", "evaluation", j.name, "error", err)
		return EvaluationScore{
			Name:      j.name,
			Reasoning: fmt.Sprintf("evaluation failed: %v", err),
		}, fmt.Errorf("%s: %w", j.name, err)
	}

	score, reasoning := parseJudgement(completion.Content)
	return EvaluationScore{
		Name:      j.name,
		Score:     score,
		Reasoning: reasoning,
		Passed:    score >= j.passScore,
	}, nil
}

// parseJudgement reads "SCORE: x, REASONING: y". Without a label it takes a leading
// number, then any number in [0,10] (values above 1 are read as a ten-point scale).
// Unparseable replies score 0.5. The score is clamped to [0,1].
func parseJudgement(reply string) (float64, string) {
	reply = strings.TrimSpace(reply)
	score := neutralScore
	end := -1

	if m := scoreLabelPattern.FindStringSubmatchIndex(reply); m != nil {
		score, _ = strconv.ParseFloat(reply[m[2]:m[3]], 64)
		end = m[1]
	} else if m := leadingScorePattern.FindStringSubmatchIndex(reply); m != nil {
		score, _ = strconv.ParseFloat(reply[m[2]:m[3]], 64)
		end = m[1]
	} else if m := anyNumberPattern.FindStringSubmatchIndex(reply); m != nil {
		if v, err := strconv.ParseFloat(reply[m[2]:m[3]], 64); err == nil {
			switch {
			case v <= 1:
				score = v
			case v <= 10:
				score = v / 10
			}
		}
		end = m[1]
	}

	var reasoning string
	switch m := reasoningPattern.FindStringSubmatch(reply); {
	case m != nil:
		reasoning = strings.TrimSpace(m[1])
	case end >= 0:
		reasoning = strings.TrimLeft(reply[end:], ",: ")
	default:
		reasoning = reply
	}
	return clamp01(score), reasoning
}

// completeness flags empty, evasive and very short answers without a model call.
func completeness(answer string) EvaluationScore {
	lower := strings.ToLower(answer)
	s := EvaluationScore{Name: EvalAnswerCompleteness}
	switch {
	case strings.TrimSpace(answer) == "":
		s.Score, s.Reasoning = 0, "Answer is empty"
	case strings.Contains(lower, "don't know"), strings.Contains(lower, "don't have"):
		s.Score, s.Reasoning = 0.3, "Answer indicates information not available"
	case len(strings.Fields(answer)) < 5:
		s.Score, s.Reasoning = 0.6, "Answer is quite short"
	default:
		s.Score, s.Reasoning = 0.9, "Answer appears complete"
	}
	s.Passed = s.Score >= 0.7
	return s
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
