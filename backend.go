package geoai

import (
	"context"
	"sync"

	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

// Backend is the contract between the pipeline and a model server.
type Backend interface {
	// Infer runs model on the named input tensors and returns the requested
	// outputs. All outputs are returned when outputs is empty.
	Infer(ctx context.Context, model string, inputs []Tensor, outputs []string) ([]Tensor, error)
	// ModelConfig returns the model's declared inputs and outputs
	ModelConfig(ctx context.Context, model string) (*ModelConfig, error)
	// Load asks the server to load the model, it does not wait for readiness
	Load(ctx context.Context, model string) error
	// Unload asks the server to release the model
	Unload(ctx context.Context, model string) error
	// Index lists the models of the server's repository
	Index(ctx context.Context) ([]ModelIndexEntry, error)
}

// TensorConfig is a declared model input or output.
type TensorConfig struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Dims     []int64 `json:"dims"`
}

// ModelConfig is the subset of a model server configuration needed to shape
// requests.
type ModelConfig struct {
	Name         string         `json:"name"`
	MaxBatchSize int            `json:"max_batch_size"`
	Inputs       []TensorConfig `json:"input"`
	Outputs      []TensorConfig `json:"output"`
}

// InputRank returns the rank the server expects for the first input. A model
// with dynamic batching declares its dims without the batch dimension.
func (c *ModelConfig) InputRank() int {

	if c == nil || len(c.Inputs) == 0 {
		return 0
	}

	rank := len(c.Inputs[0].Dims)

	if c.MaxBatchSize > 0 {
		rank++
	}

	return rank
}

// ModelIndexEntry is one model of the server repository.
type ModelIndexEntry struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// inputShaper prepends a batch dimension to inputs whose rank is lower than
// the one declared by the model config. Configs are fetched once per model.
type inputShaper struct {
	mu      sync.Mutex
	configs map[string]*ModelConfig
	warned  map[string]bool
}

func newInputShaper() *inputShaper {
	return &inputShaper{
		configs: make(map[string]*ModelConfig),
		warned:  make(map[string]bool),
	}
}

type configFetcher func(ctx context.Context, model string) (*ModelConfig, error)

func (s *inputShaper) config(ctx context.Context, model string, fetch configFetcher) (*ModelConfig, error) {

	s.mu.Lock()
	cfg, ok := s.configs[model]
	s.mu.Unlock()

	if ok {
		return cfg, nil
	}

	cfg, err := fetch(ctx, model)

	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.configs[model] = cfg
	s.mu.Unlock()

	return cfg, nil
}

// shape returns inputs adjusted to the model's declared rank.
func (s *inputShaper) shape(ctx context.Context, model string, inputs []Tensor, fetch configFetcher) ([]Tensor, error) {

	cfg, err := s.config(ctx, model, fetch)

	if err != nil {
		return nil, err
	}

	rank := cfg.InputRank()

	if rank == 0 {
		return inputs, nil
	}

	out := make([]Tensor, len(inputs))
	fixed := false

	for i, in := range inputs {
		if rank > in.Rank() {
			out[i] = in.WithBatchDim()
			fixed = true
			continue
		}
		out[i] = in
	}

	if fixed {
		s.mu.Lock()
		first := !s.warned[model]
		s.warned[model] = true
		s.mu.Unlock()

		if first {
			log.Warn("backend: input rank lower than model config, prepending batch dimension",
				zap.String("model", model), zap.Int("declared_rank", rank))
		}
	}

	return out, nil
}
