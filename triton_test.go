package geoai

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/x448/float16"
)

// fakeServer is a minimal KServe v2 server recording the shapes it receives.
type fakeServer struct {
	mu       sync.Mutex
	shapes   [][]int64
	loaded   []string
	unloaded []string
	dims     []int64
	status   int
	delay    time.Duration
	fp16     bool
}

func (f *fakeServer) handler(t *testing.T) http.Handler {

	mux := http.NewServeMux()

	mux.HandleFunc("/v2/models/m/config", func(w http.ResponseWriter, r *http.Request) {
		cfg := ModelConfig{Name: "m", Inputs: []TensorConfig{{Name: "images", DataType: "TYPE_FP32", Dims: f.dims}}}
		_ = json.NewEncoder(w).Encode(cfg)
	})

	mux.HandleFunc("/v2/models/m/infer", func(w http.ResponseWriter, r *http.Request) {

		if f.delay > 0 {
			time.Sleep(f.delay)
		}

		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"model not ready"}`))
			return
		}

		body, _ := io.ReadAll(r.Body)
		n := len(body)

		if h := r.Header.Get(headerContentLength); h != "" {
			n, _ = strconv.Atoi(h)
		}

		var req inferRequest

		if err := json.Unmarshal(body[:n], &req); err != nil {
			t.Errorf("bad request json: %v", err)
		}

		f.mu.Lock()
		f.shapes = append(f.shapes, req.Inputs[0].Shape)
		f.mu.Unlock()

		if !f.fp16 {
			resp := inferResponse{ModelName: "m", Outputs: []inferTensor{
				{Name: "output", Datatype: "FP32", Shape: []int64{1, 2}, Data: []float64{0.5, 1.5}},
			}}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		raw := make([]byte, 4)
		binary.LittleEndian.PutUint16(raw[0:], float16.Fromfloat32(0.25).Bits())
		binary.LittleEndian.PutUint16(raw[2:], float16.Fromfloat32(-2).Bits())

		resp := inferResponse{ModelName: "m", Outputs: []inferTensor{
			{Name: "output", Datatype: "FP16", Shape: []int64{1, 2},
				Parameters: map[string]interface{}{paramBinarySize: len(raw)}},
		}}

		js, _ := json.Marshal(resp)
		w.Header().Set(headerContentLength, strconv.Itoa(len(js)))
		_, _ = w.Write(js)
		_, _ = w.Write(raw)
	})

	mux.HandleFunc("/v2/repository/models/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v2/repository/models/"), "/")
		f.mu.Lock()
		defer f.mu.Unlock()

		switch parts[1] {
		case "load":
			f.loaded = append(f.loaded, parts[0])
		case "unload":
			f.unloaded = append(f.unloaded, parts[0])
		}
	})

	mux.HandleFunc("/v2/repository/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"m","version":"1","state":"READY"}]`))
	})

	return mux
}

func input() Tensor {
	return NewTensor("images", []int64{3, 2, 2}, make([]float32, 12))
}

func TestTritonInferPrependsBatchDim(t *testing.T) {

	fs := &fakeServer{dims: []int64{1, 3, 2, 2}}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	for _, tc := range []struct {
		name string
		opts []TritonOption
	}{
		{"binary", nil},
		{"json", []TritonOption{WithJSONTensors()}},
	} {
		c := NewTritonClient(srv.URL, tc.opts...)

		out, err := c.Infer(context.Background(), "m", []Tensor{input()}, []string{"output"})

		if err != nil {
			t.Fatalf("Test failed for %s: %v", tc.name, err)
		}

		if len(out) != 1 || len(out[0].Data) != 2 || out[0].Data[1] != 1.5 {
			t.Errorf("Test failed for %s: unexpected output %v", tc.name, out)
		}
	}

	for _, shape := range fs.shapes {
		if len(shape) != 4 || shape[0] != 1 {
			t.Errorf("request shape = %v; want batch dimension prepended", shape)
		}
	}
}

func TestTritonInferKeepsRankWhenDeclaredLower(t *testing.T) {

	fs := &fakeServer{dims: []int64{3, 2, 2}}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	c := NewTritonClient(srv.URL)

	if _, err := c.Infer(context.Background(), "m", []Tensor{input()}, nil); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if len(fs.shapes[0]) != 3 {
		t.Errorf("request shape = %v; want rank 3", fs.shapes[0])
	}
}

func TestTritonInferFP16Output(t *testing.T) {

	fs := &fakeServer{dims: []int64{3, 2, 2}, fp16: true}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	out, err := NewTritonClient(srv.URL).Infer(context.Background(), "m", []Tensor{input()}, nil)

	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if out[0].Data[0] != 0.25 || out[0].Data[1] != -2 {
		t.Errorf("fp16 decode = %v; want [0.25 -2]", out[0].Data)
	}
}

func TestTritonFailures(t *testing.T) {

	fs := &fakeServer{dims: []int64{3, 2, 2}, status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	_, err := NewTritonClient(srv.URL).Infer(context.Background(), "m", []Tensor{input()}, nil)

	if !errors.Is(err, ErrInferenceUnavailable) {
		t.Errorf("server error = %v; want INFERENCE_UNAVAILABLE", err)
	}

	slow := &fakeServer{dims: []int64{3, 2, 2}, delay: 200 * time.Millisecond}
	srv2 := httptest.NewServer(slow.handler(t))
	defer srv2.Close()

	_, err = NewTritonClient(srv2.URL, WithTimeout(20*time.Millisecond)).
		Infer(context.Background(), "m", []Tensor{input()}, nil)

	if KindOf(err) != InferenceUnavailable {
		t.Errorf("timeout error = %v; want INFERENCE_UNAVAILABLE", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewTritonClient(srv2.URL).Infer(ctx, "m", []Tensor{input()}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v; want context.Canceled", err)
	}
}

func TestTritonRepository(t *testing.T) {

	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	pool, err := NewTritonPool([]string{srv.URL, srv.URL}, WithRateLimit(1000))

	if err != nil {
		t.Fatalf("NewTritonPool failed: %v", err)
	}

	defer pool.Close()

	models := []ModelInfo{{Name: "m"}, {Name: "n"}}
	LoadModels(context.Background(), pool, models)
	UnloadModels(context.Background(), pool, models)

	// every endpoint receives every request
	if len(fs.loaded) != 4 || len(fs.unloaded) != 4 {
		t.Errorf("loaded %v unloaded %v; want 4 requests each", fs.loaded, fs.unloaded)
	}

	idx, err := pool.Index(context.Background())

	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	if len(idx) != 1 || idx[0].Name != "m" || idx[0].State != "READY" {
		t.Errorf("index = %+v", idx)
	}
}
