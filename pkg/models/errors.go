package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failures that are allowed to reach the caller.
// Every other failure class (per-endpoint fetch errors, structuring
// failures, enrichment failures, audit persistence failures) is absorbed
// by a deterministic fallback at the layer where it occurs.
var (
	// ErrMissingOpenAIKey is returned before any network call when the
	// OpenAI credential is absent.
	ErrMissingOpenAIKey = errors.New("openai API key is required")

	// ErrMissingFMPKey is returned before any network call when the
	// Financial Modeling Prep credential is absent.
	ErrMissingFMPKey = errors.New("financial modeling prep API key is required")

	// ErrEmptyResult is returned when the full pipeline produced no rows.
	ErrEmptyResult = errors.New("query produced no data; retry or check your API keys")
)

// GenerationError indicates SQL synthesis failed on both the primary and
// the fallback model. It is fatal to the whole request.
type GenerationError struct {
	Model    string
	Fallback string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation failed on %s and fallback %s: %v", e.Model, e.Fallback, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Validate checks the engine's key preconditions.
func (k APIKeys) Validate() error {
	if k.OpenAI == "" {
		return ErrMissingOpenAIKey
	}
	if k.FinancialModelingPrep == "" {
		return ErrMissingFMPKey
	}
	return nil
}
