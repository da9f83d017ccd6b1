package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrQuotaExceeded = errors.New("api quota exceeded")
	ErrInvalidKey    = errors.New("api key rejected")
)

// Rotatable reports whether err should move the caller on to the next key.
func Rotatable(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrInvalidKey)
}

// classify wraps genai API errors with ErrQuotaExceeded or ErrInvalidKey
// based on the status code and reason. Other errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		return fmt.Errorf("%s: %w: %w", op, ErrQuotaExceeded, err)
	case isKeyRejection(apiErr):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func isKeyRejection(e genai.APIError) bool {
	switch e.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
	default:
		return false
	}
	if e.Code == http.StatusUnauthorized || e.Status == "UNAUTHENTICATED" {
		return true
	}
	for _, d := range e.Details {
		if reason, _ := d["reason"].(string); reason == "API_KEY_INVALID" {
			return true
		}
	}
	return strings.Contains(e.Message, "API key not valid")
}
