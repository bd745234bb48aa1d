// Package router implements failover across configured completion providers.
//
// Attempts are strictly sequential in fixed priority order; there is never
// fan-out racing, so each request produces at most one billable winning call
// and no duplicate side effects from slow-but-successful providers.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
	"github.com/chatcart/chatcart/internal/provider/health"
)

// ErrAllProvidersExhausted is returned when every configured provider was
// skipped or failed for one routing pass. It is the only error this package
// surfaces to callers; individual provider failures are absorbed by
// failover.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// FallbackMessage is the safe customer-facing reply for an exhausted turn.
const FallbackMessage = "Sorry, I can't answer right now. A team member will follow up with you shortly."

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 30 * time.Second

// Config tunes router behavior.
type Config struct {
	// AttemptTimeout bounds each individual provider call.
	// Default: DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// Limiter, when set, gates every dispatch for proactive rate limiting.
	Limiter *rate.Limiter

	// Validate, when set, is applied to each successful response before it
	// wins. A validation error counts as a failed attempt for that provider
	// and failover continues; this is how malformed structured output that
	// also fails text-fallback parsing is handled.
	Validate func(*provider.Response) error

	// Now overrides the clock used for health checks. Tests only.
	Now func() time.Time
}

// Result describes one completed routing pass for audit purposes.
type Result struct {
	Response     *provider.Response
	ProviderUsed string
	Attempts     int      // providers actually dispatched
	Skipped      []string // providers skipped (unhealthy or missing capability)
}

// Router iterates providers in priority order, skipping unhealthy or
// incapable candidates and failing over on error.
//
// Router is stateless apart from the injected health tracker and is safe for
// concurrent use.
type Router struct {
	providers      []provider.Provider
	tracker        *health.Tracker
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	validate       func(*provider.Response) error
	logger         log.Logger
	now            func() time.Time
}

// New creates a Router over the given providers. The slice is copied and
// sorted by descriptor priority (lower first); callers may pass it in any
// order.
func New(providers []provider.Provider, tracker *health.Tracker, logger log.Logger, cfg Config) (*Router, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if tracker == nil {
		return nil, errors.New("health tracker is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ordered := slices.Clone(providers)
	slices.SortStableFunc(ordered, func(a, b provider.Provider) int {
		return a.Descriptor().Priority - b.Descriptor().Priority
	})

	return &Router{
		providers:      ordered,
		tracker:        tracker,
		attemptTimeout: cfg.AttemptTimeout,
		limiter:        cfg.Limiter,
		validate:       cfg.Validate,
		logger:         logger,
		now:            now,
	}, nil
}

// Complete executes req against the first healthy, capable provider, failing
// over on error. Each provider is tried at most once per pass. A canceled
// parent context aborts the pass without reporting the in-flight attempt to
// the health tracker.
func (r *Router) Complete(ctx context.Context, req *provider.Request) (*Result, error) {
	result := &Result{}
	var lastErr error

	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("routing pass canceled: %w", err)
		}

		desc := p.Descriptor()

		// Capability mismatch is a skip condition evaluated before
		// dispatch, never a runtime failure.
		if req.RequireStructured && !desc.Capabilities.Has(provider.CapStructuredOutput) {
			result.Skipped = append(result.Skipped, desc.Name)
			r.logger.Debug("skipping provider without structured output", "provider", desc.Name)
			continue
		}

		if !r.tracker.Healthy(desc.Name, r.now()) {
			result.Skipped = append(result.Skipped, desc.Name)
			r.logger.Debug("skipping unhealthy provider", "provider", desc.Name)
			continue
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		result.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		resp, err := p.Complete(attemptCtx, req)
		cancel()

		if err == nil && r.validate != nil {
			if verr := r.validate(resp); verr != nil {
				err = fmt.Errorf("%w: %v", provider.ErrMalformedOutput, verr)
			}
		}

		if err == nil {
			r.tracker.Report(desc.Name, health.Success)
			result.Response = resp
			result.ProviderUsed = desc.Name
			r.logger.Debug("completion routed",
				"provider", desc.Name,
				"attempts", result.Attempts,
				"skipped", len(result.Skipped),
			)
			return result, nil
		}

		// A canceled turn must not poison health counters: the provider
		// did nothing wrong.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("routing pass canceled: %w", ctx.Err())
		}

		r.tracker.Report(desc.Name, health.Failure)
		lastErr = err

		// Transient failures are the expected failover currency; anything
		// else deserves operator attention.
		if provider.Unavailable(err) {
			r.logger.Warn("provider unavailable, failing over",
				"provider", desc.Name,
				"error", err,
			)
		} else {
			r.logger.Error("provider failed with unexpected error",
				"provider", desc.Name,
				"error", err,
			)
		}
	}

	// The partial result is returned alongside the error so callers can
	// still audit how many attempts the failed pass consumed.
	if lastErr != nil {
		return result, fmt.Errorf("%w after %d attempts: %v", ErrAllProvidersExhausted, result.Attempts, lastErr)
	}
	return result, fmt.Errorf("%w: no eligible providers", ErrAllProvidersExhausted)
}

// Providers returns the descriptor list in routing order, for diagnostics.
func (r *Router) Providers() []provider.Descriptor {
	descs := make([]provider.Descriptor, len(r.providers))
	for i, p := range r.providers {
		descs[i] = p.Descriptor()
	}
	return descs
}
