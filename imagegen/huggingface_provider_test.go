package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"imagesynth/core"
)

func newTestHFProvider(t *testing.T, handler http.HandlerFunc) (*HuggingFaceProvider, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	p, err := NewHuggingFaceProviderWithConfig(HuggingFaceProviderConfig{
		Token:      "hf_testtoken",
		BaseURL:    server.URL + "/models/",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewHuggingFaceProviderWithConfig() error = %v", err)
	}
	return p, &hits
}

func hfRequestFor(prompt string) Request {
	seed := int64(1234)
	req := NewRequest(prompt)
	req.Seed = &seed
	return req
}

func TestNewHuggingFaceProvider_MissingToken(t *testing.T) {
	_, err := NewHuggingFaceProvider(&core.Config{})
	if code := core.GetErrorCode(err); code != core.ErrCodeMissingAuth {
		t.Errorf("error code = %q, want %q (err = %v)", code, core.ErrCodeMissingAuth, err)
	}
	if _, err := NewHuggingFaceProvider(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestHuggingFaceProvider_Success(t *testing.T) {
	var got hfRequest
	var auth, path string
	p, _ := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t, 1344, 768))
	})

	outcome := p.Attempt(context.Background(), hfRequestFor("a lighthouse at dusk"))
	if !outcome.OK() {
		t.Fatalf("Attempt() failed: %v", outcome.Failure)
	}
	if auth != "Bearer hf_testtoken" {
		t.Errorf("Authorization = %q", auth)
	}
	if path != "/models/black-forest-labs/FLUX.1-schnell" {
		t.Errorf("path = %q", path)
	}
	if got.Inputs != "a lighthouse at dusk" {
		t.Errorf("inputs = %q", got.Inputs)
	}
	want := hfParameters{Width: 1344, Height: 768, NumInferenceSteps: 4, Seed: 1234}
	if got.Parameters != want {
		t.Errorf("parameters = %+v, want %+v", got.Parameters, want)
	}
	if b := outcome.Image.Bounds(); b.Dx() != 1344 || b.Dy() != 768 {
		t.Errorf("image size = %dx%d", b.Dx(), b.Dy())
	}
	if outcome.OriginalSize != "" {
		t.Errorf("OriginalSize = %q, want empty", outcome.OriginalSize)
	}
	if outcome.Model != "black-forest-labs/FLUX.1-schnell" {
		t.Errorf("Model = %q", outcome.Model)
	}
}

func TestHuggingFaceProvider_RequestModelOverridesDefault(t *testing.T) {
	var path string
	p, _ := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write(pngBytes(t, 256, 256))
	})

	req := hfRequestFor("x")
	req.Width, req.Height = 256, 256
	req.Model = "black-forest-labs/FLUX.1-dev"
	outcome := p.Attempt(context.Background(), req)
	if !outcome.OK() {
		t.Fatalf("Attempt() failed: %v", outcome.Failure)
	}
	if path != "/models/black-forest-labs/FLUX.1-dev" || outcome.Model != req.Model {
		t.Errorf("path = %q, model = %q", path, outcome.Model)
	}
}

func TestHuggingFaceProvider_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   FailureCategory
	}{
		{"payment required", http.StatusPaymentRequired, `{"error":"You have exceeded your monthly included credits for Inference Providers."}`, CategoryQuotaOrPayment},
		{"rate limited", http.StatusTooManyRequests, `{"error":"Rate limit reached"}`, CategoryRateLimited},
		{"model loading", http.StatusServiceUnavailable, `{"error":"Model is currently loading","estimated_time":20.0}`, CategoryTransient},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid credentials in Authorization header"}`, CategoryFatal},
		{"not found", http.StatusNotFound, `Not Found`, CategoryFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, hits := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			outcome := p.Attempt(context.Background(), hfRequestFor("x"))
			if outcome.OK() {
				t.Fatal("Attempt() succeeded, want failure")
			}
			if outcome.Failure.Category != tt.want {
				t.Errorf("category = %s, want %s (message %q)", outcome.Failure.Category, tt.want, outcome.Failure.Message)
			}
			if outcome.Failure.Role != RolePrimary || outcome.Failure.Provider != "huggingface" {
				t.Errorf("failure = %+v", outcome.Failure)
			}
			var status *StatusError
			if !errors.As(outcome.Failure, &status) || status.Code != tt.status {
				t.Errorf("failure does not carry status %d", tt.status)
			}
			if n := atomic.LoadInt32(hits); n != 1 {
				t.Errorf("provider called %d times, want exactly 1", n)
			}
		})
	}
}

func TestHuggingFaceProvider_JSONWithOKIsFailure(t *testing.T) {
	p, _ := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"unexpected output"}`))
	})

	outcome := p.Attempt(context.Background(), hfRequestFor("x"))
	if outcome.OK() || !strings.Contains(outcome.Failure.Message, "unexpected output") {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestHuggingFaceProvider_UndecodableBodyIsFatal(t *testing.T) {
	p, _ := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("not an image"))
	})

	outcome := p.Attempt(context.Background(), hfRequestFor("x"))
	if outcome.OK() || outcome.Failure.Category != CategoryFatal {
		t.Errorf("outcome = %+v, want fatal failure", outcome)
	}
}

func TestHuggingFaceProvider_DimensionBounds(t *testing.T) {
	p, hits := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t, 8, 8))
	})

	for _, size := range [][2]int{{255, 512}, {512, 2049}, {4096, 4096}} {
		req := hfRequestFor("x")
		req.Width, req.Height = size[0], size[1]
		outcome := p.Attempt(context.Background(), req)
		if outcome.OK() || outcome.Failure.Category != CategoryFatal {
			t.Errorf("%dx%d: outcome = %+v, want fatal", size[0], size[1], outcome)
		}
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("out-of-range sizes reached the provider %d times", n)
	}
}

func TestHuggingFaceProvider_ClampsSteps(t *testing.T) {
	var got hfRequest
	p, _ := newTestHFProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(pngBytes(t, 256, 256))
	})

	req := hfRequestFor("x")
	req.Width, req.Height, req.Steps = 256, 256, 500
	p.Attempt(context.Background(), req)
	if got.Parameters.NumInferenceSteps != MaxPrimarySteps {
		t.Errorf("steps = %d, want %d", got.Parameters.NumInferenceSteps, MaxPrimarySteps)
	}
}

func TestHuggingFaceProvider_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p, err := NewHuggingFaceProviderWithConfig(HuggingFaceProviderConfig{Token: "hf_x", BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	outcome := p.Attempt(context.Background(), hfRequestFor("x"))
	if outcome.OK() || outcome.Failure.Category != CategoryTransient {
		t.Errorf("outcome = %+v, want transient failure", outcome)
	}
}
