package provider

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors checked with errors.Is().
var (
	// ErrUnavailable marks a transient provider failure (quota, auth,
	// timeout, server error). The router recovers by failing over; it is
	// never surfaced raw to callers.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMalformedOutput marks a response that could not be parsed even by
	// the plain-text fallback path. The router treats it as ErrUnavailable
	// for that provider and continues failover.
	ErrMalformedOutput = errors.New("malformed provider output")
)

// unavailablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching is used because LLM SDKs do not expose typed errors
// for transient failures. Re-evaluate if the SDKs grow structured error
// types.
var unavailablePatterns = [][]string{
	{"rate limit", "quota", "429"},               // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
	{"401", "403", "unauthorized", "api key"},    // auth: unusable until fixed, fail over
}

// Unavailable reports whether err should be treated as a transient provider
// failure that failover can recover from.
func Unavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedOutput) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range unavailablePatterns {
		for _, pattern := range group {
			if strings.Contains(errStr, pattern) {
				return true
			}
		}
	}
	return false
}
