package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Chain implements Synthesizer by trying multiple backends in order.
// The first successful backend wins; if all fail, returns a *ChainError.
type Chain struct {
	backends []Synthesizer
	logger   *slog.Logger
}

// NewChain creates a chain that tries backends in order.
// At least one backend is required.
func NewChain(backends ...Synthesizer) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	return &Chain{
		backends: backends,
		logger:   slog.Default().With("component", "tts.chain"),
	}, nil
}

// Name returns the backend names joined with "+".
func (c *Chain) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return strings.Join(names, "+")
}

// Synthesize tries each backend until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	var errs []error
	for i, b := range c.backends {
		result, err := b.Synthesize(ctx, text, opts)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback backend succeeded", "backend", b.Name(), "chars", len(text))
			}
			return result, nil
		}

		errs = append(errs, WrapError(b.Name(), err))
		c.logger.Warn("backend failed, trying next", "backend", b.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: errs}
}

// ChainError aggregates errors from all backends in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no errors recorded"
	case 1:
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("tts chain: all %d backends failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

var _ Synthesizer = (*Chain)(nil)
