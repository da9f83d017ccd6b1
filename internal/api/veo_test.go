package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantQuota bool
		wantKey   bool
	}{
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true, false},
		{"exhausted status only", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, true, false},
		{"pointer form", &genai.APIError{Code: 429}, true, false},
		{"wrapped", fmt.Errorf("call: %w", genai.APIError{Code: 429}), true, false},
		{
			"invalid key reason",
			genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Details: []map[string]any{{"reason": "API_KEY_INVALID"}}},
			false, true,
		},
		{"invalid key message", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, false, true},
		{"unauthenticated", genai.APIError{Code: 401, Status: "UNAUTHENTICATED"}, false, true},
		{"bad prompt", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "prompt blocked"}, false, false},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, false, false},
		{"plain error", errors.New("dial tcp: timeout"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			if got := errors.Is(err, ErrQuotaExceeded); got != tt.wantQuota {
				t.Errorf("quota = %v, want %v (%v)", got, tt.wantQuota, err)
			}
			if got := errors.Is(err, ErrInvalidKey); got != tt.wantKey {
				t.Errorf("invalid key = %v, want %v (%v)", got, tt.wantKey, err)
			}
			if Rotatable(err) != (tt.wantQuota || tt.wantKey) {
				t.Errorf("Rotatable() mismatch for %v", err)
			}
			if !strings.Contains(err.Error(), tt.err.Error()) {
				t.Errorf("original error lost: %v", err)
			}
		})
	}

	if classify("op", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestToOperation(t *testing.T) {
	tests := []struct {
		name    string
		in      *genai.GenerateVideosOperation
		wantURI string
		wantErr string
	}{
		{"pending", &genai.GenerateVideosOperation{Name: "operations/1"}, "", ""},
		{
			"done with video",
			&genai.GenerateVideosOperation{
				Name: "operations/1",
				Done: true,
				Response: &genai.GenerateVideosResponse{
					GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files/abc:download"}}},
				},
			},
			"https://files/abc:download", "",
		},
		{
			"operation error",
			&genai.GenerateVideosOperation{Name: "operations/1", Done: true, Error: map[string]any{"message": "internal"}},
			"", "internal",
		},
		{
			"filtered",
			&genai.GenerateVideosOperation{
				Name:     "operations/1",
				Done:     true,
				Response: &genai.GenerateVideosResponse{RAIMediaFilteredReasons: []string{"unsafe content"}},
			},
			"", "unsafe content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := toOperation(tt.in)
			if op.Name != tt.in.Name || op.Done != tt.in.Done {
				t.Errorf("handle mismatch: %+v", op)
			}
			if op.VideoURI != tt.wantURI {
				t.Errorf("VideoURI = %q, want %q", op.VideoURI, tt.wantURI)
			}
			if op.Error != tt.wantErr {
				t.Errorf("Error = %q, want %q", op.Error, tt.wantErr)
			}
		})
	}
}
