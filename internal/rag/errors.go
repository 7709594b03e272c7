package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding is returned when the question cannot be embedded.
	ErrEmbedding = errors.New("embedding failed")
	// ErrGeneration is returned when the generative model fails; no confidence is computed.
	ErrGeneration = errors.New("generation failed")
	// ErrTimeout marks a stage that exceeded its time bound.
	ErrTimeout = errors.New("stage timed out")
)

// Pipeline stage names used in errors, logs and metrics.
const (
	StageEmbed    = "embed"
	StageClassify = "classify"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageGenerate = "generate"
	StageEvaluate = "evaluate"
)

// StageError reports a fatal pipeline failure. errors.Is matches both Kind
// (ErrEmbedding or ErrGeneration) and anything wrapped in Err, including ErrTimeout.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
