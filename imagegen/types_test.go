package imagegen

import (
	"errors"
	"testing"
)

func TestNewRequest_Defaults(t *testing.T) {
	req := NewRequest("a cat")
	if req.Width != 1344 || req.Height != 768 || req.Steps != 4 || req.Format != "jpg" {
		t.Errorf("NewRequest() = %+v", req)
	}
	if req.AllowFallback {
		t.Error("fallback must be opt-in")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRequest_Validate(t *testing.T) {
	seed := func(v int64) *int64 { return &v }
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"png", func(r *Request) { r.Format = "png" }, false},
		{"jpeg alias", func(r *Request) { r.Format = "jpeg" }, false},
		{"seed zero", func(r *Request) { r.Seed = seed(0) }, false},
		{"seed max", func(r *Request) { r.Seed = seed(MaxSeed) }, false},
		{"empty prompt", func(r *Request) { r.Prompt = "" }, true},
		{"whitespace prompt", func(r *Request) { r.Prompt = "\t\n " }, true},
		{"zero width", func(r *Request) { r.Width = 0 }, true},
		{"zero height", func(r *Request) { r.Height = 0 }, true},
		{"negative steps", func(r *Request) { r.Steps = -1 }, true},
		{"webp", func(r *Request) { r.Format = "webp" }, true},
		{"negative seed", func(r *Request) { r.Seed = seed(-1) }, true},
		{"seed overflow", func(r *Request) { r.Seed = seed(MaxSeed + 1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("a cat")
			tt.mutate(&req)
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
		})
	}
}

func TestRandomSeed_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		s, err := RandomSeed()
		if err != nil {
			t.Fatalf("RandomSeed() error = %v", err)
		}
		if s < 0 || s > MaxSeed {
			t.Fatalf("RandomSeed() = %d, out of range", s)
		}
	}
}

func TestDefaultRouter(t *testing.T) {
	r := DefaultRouter{}
	if r.RoleFor("dall-e-3") != RoleSecondary || r.RoleFor("DALL-E-3") != RoleSecondary {
		t.Error("DALL-E models should route to the secondary")
	}
	if r.RoleFor("black-forest-labs/FLUX.1-dev") != RolePrimary {
		t.Error("FLUX models should route to the primary")
	}
	if r.DefaultModel() != "black-forest-labs/FLUX.1-schnell" {
		t.Errorf("DefaultModel() = %q", r.DefaultModel())
	}
}
