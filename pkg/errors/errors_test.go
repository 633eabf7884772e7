package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", New(KindNetwork, "timeout"), KindNetwork},
		{"wrapped classified", fmt.Errorf("outer: %w", New(KindRateLimit, "slow down")), KindRateLimit},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline exceeded", context.DeadlineExceeded, KindNetwork},
		{"plain", stderrors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Kind{KindNetwork, KindRateLimit, KindExtractionTransient}
	for _, k := range retryable {
		if !IsRetryable(k) {
			t.Errorf("expected %q to be retryable", k)
		}
	}
	terminal := []Kind{
		KindUnsupportedURL, KindAuthRequired, KindExtraction, KindValidation,
		KindNotFound, KindFilesystem, KindPostProcess, KindCancelled, KindUnknown,
	}
	for _, k := range terminal {
		if IsRetryable(k) {
			t.Errorf("expected %q to not be retryable", k)
		}
	}
}

func TestKindFromStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{0, KindNetwork},
		{401, KindAuthRequired},
		{403, KindAuthRequired},
		{404, KindNotFound},
		{410, KindNotFound},
		{429, KindRateLimit},
		{500, KindNetwork},
		{503, KindNetwork},
		{418, KindUnknown},
	}
	for _, tt := range tests {
		if got := KindFromStatusCode(tt.code); got != tt.want {
			t.Errorf("KindFromStatusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(KindNetwork, cause, "fetch failed")
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
	if Wrap(KindNetwork, nil, "nothing") != nil {
		t.Error("wrapping nil should return nil")
	}
}
