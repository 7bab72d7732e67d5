package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		contains []string
	}{
		{
			name:     "error with action",
			err:      &ConfigError{Code: "TEST_CODE", Message: "Test message", Action: "Take this action"},
			contains: []string{"Test message", "Take this action"},
		},
		{
			name:     "error without action",
			err:      &ConfigError{Code: "TEST_CODE", Message: "Test message only"},
			contains: []string{"Test message only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(errStr, s) {
					t.Errorf("ConfigError.Error() = %q, expected to contain %q", errStr, s)
				}
			}
		})
	}
}

func TestErrMissingAuth(t *testing.T) {
	tests := []struct {
		service    string
		wantAction string
	}{
		{"huggingface", "HF_TOKEN"},
		{"openai", "OPENAI_API_KEY"},
		{"replicate", "replicate"},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			err := ErrMissingAuth(tt.service)
			if err.Code != ErrCodeMissingAuth {
				t.Errorf("Code = %s, want %s", err.Code, ErrCodeMissingAuth)
			}
			if !strings.Contains(err.Action, tt.wantAction) {
				t.Errorf("Action = %q, expected to mention %q", err.Action, tt.wantAction)
			}
		})
	}
}

func TestIsConfigError(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", ErrMissingConfig("OUTPUT_DIR"))

	cfgErr, ok := IsConfigError(wrapped)
	if !ok {
		t.Fatal("IsConfigError() = false for wrapped ConfigError")
	}
	if cfgErr.Code != ErrCodeMissingConfig {
		t.Errorf("Code = %s, want %s", cfgErr.Code, ErrCodeMissingConfig)
	}

	if _, ok := IsConfigError(errors.New("plain")); ok {
		t.Error("IsConfigError() = true for plain error")
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrInvalidValue("PORT", "bad")); got != ErrCodeInvalidValue {
		t.Errorf("GetErrorCode() = %q, want %q", got, ErrCodeInvalidValue)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %q, want empty", got)
	}
}
