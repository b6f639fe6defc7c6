package detection

import (
	"context"
	"errors"
	"time"

	"github.com/menta2k/biometric-photo/internal/logger"
	"github.com/menta2k/biometric-photo/pkg/llamacpp"
	"github.com/menta2k/biometric-photo/pkg/ollama"
)

// DefaultLoadTimeout bounds how long Select waits for a model-backed backend
const DefaultLoadTimeout = 10 * time.Second

// Loader tries to bring up a model-backed backend
type Loader func(ctx context.Context) (Backend, error)

// Select tries loaders in order within timeout and returns the first that succeeds.
// When all fail or the timeout expires it returns fallback. It never blocks past the
// timeout.
func Select(ctx context.Context, timeout time.Duration, fallback Backend, loaders ...Loader) Backend {
	if len(loaders) == 0 {
		logger.Info("no model configured; using heuristics", logger.LoggerOptions{Key: "backend", Data: fallback.Name()})
		return fallback
	}
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		backend Backend
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		var errs []error
		for _, load := range loaders {
			backend, err := load(ctx)
			if err == nil {
				done <- outcome{backend: backend}
				return
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		done <- outcome{err: errors.Join(errs...)}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logger.Warning("model backends unavailable; using heuristics",
				logger.LoggerOptions{Key: "error", Data: res.err.Error()},
				logger.LoggerOptions{Key: "backend", Data: fallback.Name()},
			)
			return fallback
		}
		logger.Info("model backend loaded", logger.LoggerOptions{Key: "backend", Data: res.backend.Name()})
		return res.backend
	case <-ctx.Done():
		logger.Warning("model load timed out; using heuristics",
			logger.LoggerOptions{Key: "timeout", Data: timeout.String()},
			logger.LoggerOptions{Key: "backend", Data: fallback.Name()},
		)
		return fallback
	}
}

// OllamaLoader connects to an Ollama server and serves model through it, ignoring faces
// reported below minConfidence
func OllamaLoader(url, model string, minConfidence float64) Loader {
	return func(ctx context.Context) (Backend, error) {
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return NewVisionModel(c, model).WithMinConfidence(minConfidence), nil
	}
}

// LlamaCppLoader is OllamaLoader for a llama.cpp server
func LlamaCppLoader(url, model string, minConfidence float64) Loader {
	return func(ctx context.Context) (Backend, error) {
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return NewVisionModel(c, model).WithMinConfidence(minConfidence), nil
	}
}

// CascadeLoader unpacks a pigo cascade file
func CascadeLoader(path string, config CascadeConfig) Loader {
	return func(ctx context.Context) (Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cascade, err := LoadCascade(path, config)
		if err != nil {
			return nil, err
		}
		return cascade, nil
	}
}
