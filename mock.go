package geoai

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InferFunc computes a model's outputs in process.
type InferFunc func(model string, inputs []Tensor) ([]Tensor, error)

// MockBackend is an in process Backend whose models are Go functions. It
// applies the same input shaping as the HTTP client.
type MockBackend struct {
	mu       sync.Mutex
	configs  map[string]*ModelConfig
	handlers map[string]InferFunc
	loaded   map[string]bool
	calls    map[string]int
	shaper   *inputShaper
}

// NewMockBackend creates an empty mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		configs:  make(map[string]*ModelConfig),
		handlers: make(map[string]InferFunc),
		loaded:   make(map[string]bool),
		calls:    make(map[string]int),
		shaper:   newInputShaper(),
	}
}

// Register adds a model with its declared config
func (m *MockBackend) Register(model string, cfg ModelConfig, fn InferFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.Name = model
	m.configs[model] = &cfg
	m.handlers[model] = fn
}

// Infer implements Backend
func (m *MockBackend) Infer(ctx context.Context, model string, inputs []Tensor, outputs []string) ([]Tensor, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	fn, ok := m.handlers[model]
	m.mu.Unlock()

	if !ok {
		return nil, Errorf(InferenceUnavailable, "mock.Infer", "model %s is not available", model)
	}

	inputs, err := m.shaper.shape(ctx, model, inputs, m.ModelConfig)

	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls[model]++
	m.mu.Unlock()

	res, err := fn(model, inputs)

	if err != nil {
		return nil, NewError(InferenceUnavailable, "mock.Infer "+model, err)
	}

	if len(outputs) == 0 {
		return res, nil
	}

	byName := make(map[string]Tensor, len(res))

	for _, t := range res {
		byName[t.Name] = t
	}

	out := make([]Tensor, 0, len(outputs))

	for _, name := range outputs {
		t, ok := byName[name]

		if !ok {
			return nil, Errorf(InferenceUnavailable, "mock.Infer "+model, "output %s not produced", name)
		}

		out = append(out, t)
	}

	return out, nil
}

// ModelConfig implements Backend
func (m *MockBackend) ModelConfig(ctx context.Context, model string) (*ModelConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[model]

	if !ok {
		return nil, Errorf(InferenceUnavailable, "mock.ModelConfig", "model %s is not available", model)
	}

	return cfg, nil
}

// Load implements Backend
func (m *MockBackend) Load(ctx context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[model]; !ok {
		return Errorf(InferenceUnavailable, "mock.Load", "model %s is not in the repository", model)
	}

	m.loaded[model] = true
	return nil
}

// Unload implements Backend
func (m *MockBackend) Unload(ctx context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.loaded, model)
	return nil
}

// Index implements Backend
func (m *MockBackend) Index(ctx context.Context) ([]ModelIndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []ModelIndexEntry

	for name := range m.handlers {
		state := "UNAVAILABLE"

		if m.loaded[name] {
			state = "READY"
		}

		entries = append(entries, ModelIndexEntry{Name: name, Version: "1", State: state})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Calls returns how many times model was inferred
func (m *MockBackend) Calls(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[model]
}

// Loaded reports whether model is currently loaded
func (m *MockBackend) Loaded(model string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[model]
}

// String describes the mock for logs
func (m *MockBackend) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mock backend with %d models", len(m.handlers))
}
