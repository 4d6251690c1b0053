// Package orchestrator wires the validator, retriever, prompt builder,
// and generator into the end-to-end query path.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"convoindex/internal/generator"
	"convoindex/internal/model"
	"convoindex/internal/promptbuilder"
	"convoindex/internal/retrieve"
	"convoindex/internal/validator"
)

// Request is one interactive query.
type Request struct {
	Query           string
	Source          string
	PermissionLevel int
}

// Result is the end-to-end outcome of one query.
type Result struct {
	Answer    string
	Documents []model.Document
	Prompt    string
}

// Orchestrator is the query-side entrypoint: validate -> retrieve ->
// build prompt -> generate.
type Orchestrator struct {
	Validator *validator.Validator
	Retriever *retrieve.Retriever
	Builder   *promptbuilder.Builder
	Generator generator.Generator
	NumResults int
	Threshold  float64
	Log        zerolog.Logger
}

// Handle runs the full pipeline for one request.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Result, error) {
	ok, failures := o.Validator.Validate(req.Query, validator.Context{
		Source:          req.Source,
		PermissionLevel: req.PermissionLevel,
	})
	if !ok {
		return Result{}, fmt.Errorf("%w: %v", model.ErrValidation, failures)
	}

	docs, err := o.Retriever.Retrieve(ctx, req.Query, o.NumResults, o.Threshold)
	if err != nil {
		return Result{}, err
	}

	prompt := o.Builder.Build(req.Query, docs)

	answer, err := o.Generator.Generate(ctx, prompt, generator.Options{})
	if err != nil {
		o.Log.Error().Err(err).Msg("generator call failed")
		return Result{Documents: docs, Prompt: prompt}, err
	}

	return Result{Answer: answer, Documents: docs, Prompt: prompt}, nil
}
