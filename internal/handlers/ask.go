package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/rag"
	"aurora-qa/internal/service"
)

const maxRequestBodyBytes = 1 << 20

// AskHandler handles HTTP requests for questions about member messages.
type AskHandler struct {
	qaService service.QAService
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(qaService service.QAService) *AskHandler {
	return &AskHandler{qaService: qaService}
}

// AskRequest represents the HTTP request payload for a question.
//
// swagger:model AskRequest
type AskRequest struct {
	// The question, 5 to 500 characters
	Question string `json:"question"`

	// Include the messages the answer was grounded on
	IncludeSources bool `json:"include_sources"`

	// Maximum number of messages given to the model (1-500)
	MaxSources *int `json:"max_sources,omitempty"`

	// Judge the answer with the evaluation suite; defaults to true
	IncludeEvaluations *bool `json:"include_evaluations,omitempty"`
}

// AskResponse represents the HTTP response payload for a question.
//
// swagger:model AskResponse
type AskResponse struct {
	// The generated answer
	Answer string `json:"answer"`

	// Confidence in [0,1]
	Confidence float64 `json:"confidence"`

	// Confidence band: high, moderate or low
	ConfidenceLevel string `json:"confidence_level"`

	// Weighted confidence components; they sum to confidence
	ConfidenceBreakdown rag.ConfidenceBreakdown `json:"confidence_breakdown"`

	// Messages used to answer; null unless include_sources was set
	Sources []SourceResponse `json:"sources"`

	// End-to-end pipeline latency in milliseconds
	LatencyMs float64 `json:"latency_ms"`

	// Model that served the completion
	ModelUsed string `json:"model_used"`

	// Token usage and cost of the completion
	TokenUsage TokenUsageResponse `json:"token_usage"`

	// How the question was interpreted
	QueryMetadata QueryMetadata `json:"query_metadata"`

	// Advice for getting a better answer
	Tips string `json:"tips,omitempty"`

	// False when the cross-encoder was unavailable and retrieval order was used
	Reranked bool `json:"reranked"`

	// Judged answer quality; null unless include_evaluations was set
	Evaluations *rag.EvaluationResults `json:"evaluations"`
}

// SourceResponse is one message the answer was grounded on.
//
// swagger:model SourceResponse
type SourceResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name"`
	Timestamp       string   `json:"timestamp"`
	Message         string   `json:"message"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
}

// TokenUsageResponse reports token counts and cost.
//
// swagger:model TokenUsageResponse
type TokenUsageResponse struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	Estimated        bool    `json:"estimated,omitempty"`
}

// QueryMetadata describes the classification of a question.
//
// swagger:model QueryMetadata
type QueryMetadata struct {
	// One of user_specific, multi_user, factual, comparative, general
	QueryType string `json:"query_type"`

	// Canonical names of the members the question refers to
	MentionedUsers []string `json:"mentioned_users"`
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for questions.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question about member messages
//
// Resolves the members the question mentions, retrieves and reranks their messages,
// and generates an answer grounded on them together with a confidence breakdown.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/AskRequest"
//
// responses:
//
//	'200':
//	  description: Answer with confidence and optional sources
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Invalid question or max_sources
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding or generation service error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'504':
//	  description: A pipeline stage timed out
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	includeEvaluations := true
	if req.IncludeEvaluations != nil {
		includeEvaluations = *req.IncludeEvaluations
	}

	resp, err := h.qaService.Ask(ctx, service.AskRequest{
		Question:           req.Question,
		IncludeSources:     req.IncludeSources,
		IncludeEvaluations: includeEvaluations,
		MaxSources:         req.MaxSources,
	})
	if err != nil {
		status, msg := statusForError(err)
		logger.ErrorContext(ctx, "failed to answer question", "error", err, "status", status)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toHTTPResponse(resp)); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) (int, string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, rag.ErrTimeout):
		return http.StatusGatewayTimeout, "Upstream service timed out"
	case errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway, "External service error"
	default:
		return http.StatusInternalServerError, "Failed to answer question"
	}
}

func toHTTPResponse(resp service.AskResponse) AskResponse {
	mentioned := resp.MentionedUsers
	if mentioned == nil {
		mentioned = []string{}
	}
	out := AskResponse{
		Answer:              resp.Answer,
		Confidence:          resp.Confidence,
		ConfidenceLevel:     string(resp.Band),
		ConfidenceBreakdown: resp.Breakdown,
		LatencyMs:           float64(resp.Latency.Microseconds()) / 1000,
		ModelUsed:           resp.Model,
		TokenUsage: TokenUsageResponse{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			CostUSD:          resp.Usage.CostUSD,
			Estimated:        resp.Usage.Estimated,
		},
		QueryMetadata: QueryMetadata{
			QueryType:      string(resp.QueryType),
			MentionedUsers: mentioned,
		},
		Tips:        resp.Tip,
		Reranked:    resp.Reranked,
		Evaluations: resp.Evaluations,
	}
	if resp.Sources != nil {
		out.Sources = make([]SourceResponse, len(resp.Sources))
		for i, src := range resp.Sources {
			out.Sources[i] = SourceResponse{
				ID:              src.ID,
				UserID:          src.UserID,
				UserName:        src.UserName,
				Timestamp:       src.Timestamp,
				Message:         src.Message,
				SimilarityScore: src.Similarity,
				RerankerScore:   src.Relevance,
			}
		}
	}
	return out
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
