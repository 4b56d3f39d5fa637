// Package engine is the seam between the HTTP front end and an inference
// backend. No backend exists yet: the only Runner shipped emits templated
// placeholder text, and engine loading is limited to probing the engine
// directory so /health can report whether a model would be available.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Params are the sampling parameters forwarded to a runner.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Runner generates a continuation of prompt. Implementations must honor
// ctx cancellation once a real backend performs long-running work.
type Runner interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

const notLoadedText = "[Model not loaded] This is a placeholder response. " +
	"Please load a model to get actual completions."

// Engine dispatches completion requests to a runner, or answers with a
// fixed not-loaded message when no runner is attached.
type Engine struct {
	runner Runner
}

// New returns an Engine backed by runner. A nil runner is valid and means
// no model is loaded.
func New(runner Runner) *Engine {
	return &Engine{runner: runner}
}

// Loaded reports whether a runner is attached.
func (e *Engine) Loaded() bool {
	return e.runner != nil
}

// Complete produces a continuation of prompt. Without a runner the result
// is a static placeholder string rather than an error, matching the
// contract that completion requests succeed even before a model is wired.
func (e *Engine) Complete(ctx context.Context, prompt string, p Params) (string, error) {
	if e.runner == nil {
		return notLoadedText, nil
	}
	return e.runner.Generate(ctx, prompt, p)
}

// deferredRunner stands in for a compiled engine found on disk. Loading the
// engine is deferred indefinitely; generation returns a template echoing a
// prefix of the prompt.
type deferredRunner struct {
	engineDir string
}

func (r *deferredRunner) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prefix := []rune(prompt)
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	return fmt.Sprintf("[Generated response for: %s...]", string(prefix)), nil
}

// Probe inspects engineDir and returns a runner when an engine artifact
// directory is present. A missing or empty path returns nil, which leaves
// the service running without a model.
func Probe(engineDir string, logger *log.Logger) Runner {
	if engineDir == "" {
		logger.Printf("No engine directory configured; running without a model")
		return nil
	}
	if _, err := os.Stat(engineDir); err != nil {
		logger.Printf("Engine directory %s not found; running without a model: %v", engineDir, err)
		return nil
	}
	logger.Printf("Engine found at %s (loading deferred)", engineDir)
	return &deferredRunner{engineDir: engineDir}
}
