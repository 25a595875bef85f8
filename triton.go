package geoai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultInferenceTimeout bounds every call to the model server
	DefaultInferenceTimeout = 60 * time.Second

	headerContentLength = "Inference-Header-Content-Length"
	paramBinarySize     = "binary_data_size"
	paramBinaryData     = "binary_data"
)

// TritonClient talks to a KServe v2 compatible model server over HTTP, such
// as Triton Inference Server.
type TritonClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	// binary selects the binary tensor extension for inputs and outputs
	binary bool
	shaper *inputShaper
}

// TritonOption configures a TritonClient
type TritonOption func(*TritonClient)

// WithTimeout sets the per call timeout.
func WithTimeout(d time.Duration) TritonOption {
	return func(c *TritonClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit limits the client to rps requests per second. A value <= 0
// disables limiting.
func WithRateLimit(rps float64) TritonOption {
	return func(c *TritonClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) TritonOption {
	return func(c *TritonClient) {
		c.client = hc
	}
}

// WithJSONTensors sends and receives tensors as JSON arrays instead of the
// binary extension.
func WithJSONTensors() TritonOption {
	return func(c *TritonClient) {
		c.binary = false
	}
}

// NewTritonClient creates a client for the server at baseURL, eg.
// http://localhost:8000
func NewTritonClient(baseURL string, opts ...TritonOption) *TritonClient {

	c := &TritonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: DefaultInferenceTimeout,
		binary:  true,
		shaper:  newInputShaper(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL returns the server base URL
func (c *TritonClient) URL() string {
	return c.baseURL
}

type inferTensor struct {
	Name       string                 `json:"name"`
	Shape      []int64                `json:"shape"`
	Datatype   string                 `json:"datatype"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Data       []float64              `json:"data,omitempty"`
}

type inferRequestedOutput struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type inferRequest struct {
	Inputs  []inferTensor          `json:"inputs"`
	Outputs []inferRequestedOutput `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

type serverError struct {
	Error string `json:"error"`
}

// Infer implements Backend
func (c *TritonClient) Infer(ctx context.Context, model string, inputs []Tensor, outputs []string) ([]Tensor, error) {

	op := "triton.Infer " + model

	inputs, err := c.shaper.shape(ctx, model, inputs, c.ModelConfig)

	if err != nil {
		return nil, err
	}

	body, header, err := c.encodeRequest(inputs, outputs)

	if err != nil {
		return nil, NewError(BadInput, op, err)
	}

	respHeader, data, err := c.do(ctx, http.MethodPost, "/v2/models/"+url.PathEscape(model)+"/infer", header, body)

	if err != nil {
		return nil, err
	}

	res, err := decodeResponse(respHeader, data)

	if err != nil {
		return nil, NewError(InferenceUnavailable, op, err)
	}

	return res, nil
}

// encodeRequest builds the request body, using the binary extension when
// enabled.
func (c *TritonClient) encodeRequest(inputs []Tensor, outputs []string) ([]byte, http.Header, error) {

	req := inferRequest{}
	var raw [][]byte

	for _, in := range inputs {
		if len(in.Data) != in.Elements() {
			return nil, nil, fmt.Errorf("tensor %s has %d values for shape %v", in.Name, len(in.Data), in.Shape)
		}

		t := inferTensor{
			Name:     in.Name,
			Shape:    in.Shape,
			Datatype: string(TensorFloat32),
		}

		if c.binary {
			b := encodeFloat32(in.Data)
			t.Parameters = map[string]interface{}{paramBinarySize: len(b)}
			raw = append(raw, b)
		} else {
			t.Data = make([]float64, len(in.Data))
			for i, v := range in.Data {
				t.Data[i] = float64(v)
			}
		}

		req.Inputs = append(req.Inputs, t)
	}

	for _, name := range outputs {
		req.Outputs = append(req.Outputs, inferRequestedOutput{
			Name:       name,
			Parameters: map[string]interface{}{paramBinaryData: c.binary},
		})
	}

	js, err := json.Marshal(req)

	if err != nil {
		return nil, nil, fmt.Errorf("error encoding infer request: %w", err)
	}

	header := http.Header{}

	if !c.binary {
		header.Set("Content-Type", "application/json")
		return js, header, nil
	}

	header.Set("Content-Type", "application/octet-stream")
	header.Set(headerContentLength, strconv.Itoa(len(js)))

	var buf bytes.Buffer
	buf.Write(js)

	for _, b := range raw {
		buf.Write(b)
	}

	return buf.Bytes(), header, nil
}

// decodeResponse parses a JSON or binary extension infer response.
func decodeResponse(header http.Header, data []byte) ([]Tensor, error) {

	jsonLen := len(data)

	if h := header.Get(headerContentLength); h != "" {
		n, err := strconv.Atoi(h)

		if err != nil || n < 0 || n > len(data) {
			return nil, fmt.Errorf("invalid %s header %q", headerContentLength, h)
		}

		jsonLen = n
	}

	var resp inferResponse

	if err := json.Unmarshal(data[:jsonLen], &resp); err != nil {
		return nil, fmt.Errorf("error decoding infer response: %w", err)
	}

	rest := data[jsonLen:]
	out := make([]Tensor, 0, len(resp.Outputs))

	for _, o := range resp.Outputs {
		t := Tensor{Name: o.Name, Type: TensorType(o.Datatype), Shape: o.Shape}

		if size, ok := o.Parameters[paramBinarySize]; ok {
			n, ok := size.(float64)

			if !ok || int(n) > len(rest) || n < 0 {
				return nil, fmt.Errorf("output %s binary size out of range", o.Name)
			}

			values, err := decodeTensorData(t.Type, rest[:int(n)])

			if err != nil {
				return nil, fmt.Errorf("output %s: %w", o.Name, err)
			}

			t.Data = values
			rest = rest[int(n):]

		} else {
			t.Data = make([]float32, len(o.Data))
			for i, v := range o.Data {
				t.Data[i] = float32(v)
			}
		}

		if len(t.Data) != t.Elements() {
			return nil, fmt.Errorf("output %s has %d values for shape %v", o.Name, len(t.Data), o.Shape)
		}

		out = append(out, t)
	}

	return out, nil
}

// ModelConfig implements Backend
func (c *TritonClient) ModelConfig(ctx context.Context, model string) (*ModelConfig, error) {

	_, data, err := c.do(ctx, http.MethodGet, "/v2/models/"+url.PathEscape(model)+"/config", nil, nil)

	if err != nil {
		return nil, err
	}

	cfg := &ModelConfig{}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewError(InferenceUnavailable, "triton.ModelConfig "+model, err)
	}

	return cfg, nil
}

// Load implements Backend
func (c *TritonClient) Load(ctx context.Context, model string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/v2/repository/models/"+url.PathEscape(model)+"/load", nil, []byte("{}"))
	return err
}

// Unload implements Backend
func (c *TritonClient) Unload(ctx context.Context, model string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/v2/repository/models/"+url.PathEscape(model)+"/unload", nil, []byte("{}"))
	return err
}

// Index implements Backend
func (c *TritonClient) Index(ctx context.Context) ([]ModelIndexEntry, error) {

	_, data, err := c.do(ctx, http.MethodPost, "/v2/repository/index", nil, []byte("{}"))

	if err != nil {
		return nil, err
	}

	var entries []ModelIndexEntry

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, NewError(InferenceUnavailable, "triton.Index", err)
	}

	return entries, nil
}

// do performs a request bounded by the client timeout. Cancellation of the
// parent context is returned as is, every other failure is
// INFERENCE_UNAVAILABLE.
func (c *TritonClient) do(ctx context.Context, method, path string, header http.Header, body []byte) (http.Header, []byte, error) {

	op := "triton " + method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, NewError(InferenceUnavailable, op, err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader

	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(cctx, method, c.baseURL+path, rd)

	if err != nil {
		return nil, nil, NewError(BadInput, op, err)
	}

	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)

	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, NewError(InferenceUnavailable, op, err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)

	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, NewError(InferenceUnavailable, op, fmt.Errorf("error reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var se serverError
		msg := strings.TrimSpace(string(data))

		if json.Unmarshal(data, &se) == nil && se.Error != "" {
			msg = se.Error
		}

		return nil, nil, Errorf(InferenceUnavailable, op, "server returned %d: %s", resp.StatusCode, msg)
	}

	return resp.Header, data, nil
}
