package fallback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure kinds surfaced by a Responder. Every error returned by Classify
// wraps exactly one of them.
var (
	ErrConfigMissing = errors.New("fallback responder is not configured")
	ErrQuotaExceeded = errors.New("fallback quota exceeded")
	ErrModelNotFound = errors.New("fallback model not found")
	ErrUnavailable   = errors.New("fallback responder unavailable")
)

var kinds = []struct {
	err   error
	label string
}{
	{ErrConfigMissing, "config_missing"},
	{ErrQuotaExceeded, "quota_exceeded"},
	{ErrModelNotFound, "model_not_found"},
	{ErrUnavailable, "unavailable"},
}

// Kind returns a stable label for a classified error, or "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "unavailable"
}

// Classify maps a provider error onto the failure taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(err error) error {
	return classifyWithStatus(err, 0)
}

func classifyWithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(msg, "api_key") || strings.Contains(msg, "api key"):
		return fmt.Errorf("%w: %v", ErrConfigMissing, err)
	case status == http.StatusTooManyRequests || strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case status == http.StatusNotFound || strings.Contains(msg, "404") ||
		strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", ErrModelNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
