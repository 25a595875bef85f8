package geoai

import (
	"context"
	"errors"
	"sync"

	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

// Pool spreads calls over several model server endpoints serving the same
// repository. A Pool is itself a Backend.
type Pool struct {
	// pool of backends
	backends chan Backend
	// all holds every backend for broadcast calls
	all []Backend
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a pool over the given backends
func NewPool(backends ...Backend) (*Pool, error) {

	if len(backends) == 0 {
		return nil, Errorf(InferenceUnavailable, "NewPool", "no backend endpoints configured")
	}

	p := &Pool{
		backends: make(chan Backend, len(backends)),
		all:      backends,
		size:     len(backends),
	}

	for _, b := range backends {
		// attach to pool
		p.Return(b)
	}

	return p, nil
}

// NewTritonPool creates a pool with a TritonClient per URL
func NewTritonPool(urls []string, opts ...TritonOption) (*Pool, error) {

	backends := make([]Backend, 0, len(urls))

	for _, u := range urls {
		backends = append(backends, NewTritonClient(u, opts...))
	}

	return NewPool(backends...)
}

// Get a backend from the pool, blocking until one is free or ctx is done
func (p *Pool) Get(ctx context.Context) (Backend, error) {
	select {
	case b, ok := <-p.backends:
		if !ok {
			return nil, Errorf(InferenceUnavailable, "Pool.Get", "pool is closed")
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return a backend to the pool
func (p *Pool) Return(b Backend) {
	defer func() {
		// sending on a closed pool
		_ = recover()
	}()

	select {
	case p.backends <- b:
	default:
		// pool is full
	}
}

// Size returns the number of endpoints
func (p *Pool) Size() int {
	return p.size
}

// Infer implements Backend
func (p *Pool) Infer(ctx context.Context, model string, inputs []Tensor, outputs []string) ([]Tensor, error) {

	b, err := p.Get(ctx)

	if err != nil {
		return nil, err
	}

	defer p.Return(b)
	return b.Infer(ctx, model, inputs, outputs)
}

// ModelConfig implements Backend
func (p *Pool) ModelConfig(ctx context.Context, model string) (*ModelConfig, error) {

	b, err := p.Get(ctx)

	if err != nil {
		return nil, err
	}

	defer p.Return(b)
	return b.ModelConfig(ctx, model)
}

// Load implements Backend, the model is loaded on every endpoint
func (p *Pool) Load(ctx context.Context, model string) error {

	var errs []error

	for _, b := range p.all {
		if err := b.Load(ctx, model); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Unload implements Backend, the model is unloaded from every endpoint
func (p *Pool) Unload(ctx context.Context, model string) error {

	var errs []error

	for _, b := range p.all {
		if err := b.Unload(ctx, model); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Index implements Backend, using the first endpoint
func (p *Pool) Index(ctx context.Context) ([]ModelIndexEntry, error) {
	return p.all[0].Index(ctx)
}

// Close the pool, no further backends can be taken from it
func (p *Pool) Close() {
	p.close.Do(func() {
		close(p.backends)

		// drain
		for range p.backends {
		}
	})
}

// LoadModels issues one load request per model. Failures are logged and not
// returned, an unavailable model surfaces when it is inferred.
func LoadModels(ctx context.Context, b Backend, models []ModelInfo) {
	for _, m := range models {
		if err := b.Load(ctx, m.Name); err != nil {
			log.Warn("backend: model load request failed", zap.String("model", m.Name), zap.Error(err))
		}
	}
}

// UnloadModels issues one unload request per model, logging failures.
func UnloadModels(ctx context.Context, b Backend, models []ModelInfo) {
	for _, m := range models {
		if err := b.Unload(ctx, m.Name); err != nil {
			log.Warn("backend: model unload request failed", zap.String("model", m.Name), zap.Error(err))
		}
	}
}
