package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/chatcart/chatcart/internal/log"
)

// GenkitProvider adapts a Genkit-registered model to the Provider interface.
// One instance per configured backend; the model itself is addressed by the
// descriptor's model name (e.g. "googleai/gemini-2.5-flash").
type GenkitProvider struct {
	g      *genkit.Genkit
	desc   Descriptor
	logger log.Logger
}

// NewGenkit creates a provider backed by a Genkit model.
func NewGenkit(g *genkit.Genkit, desc Descriptor, logger log.Logger) *GenkitProvider {
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitProvider{g: g, desc: desc, logger: logger}
}

// Name implements Provider.
func (p *GenkitProvider) Name() string { return p.desc.Name }

// Descriptor implements Provider.
func (p *GenkitProvider) Descriptor() Descriptor { return p.desc }

// Complete implements Provider. Structured output is requested only when the
// descriptor advertises the capability; the router guarantees that, but the
// check here keeps the adapter safe standalone.
func (p *GenkitProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(p.desc.Model),
		ai.WithMessages(req.Messages...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if gc := generationConfig(req); gc != nil {
		opts = append(opts, ai.WithConfig(gc))
	}

	structured := req.RequireStructured && p.desc.Capabilities.Has(CapStructuredOutput)
	if structured {
		opts = append(opts, ai.WithOutputType(StructuredReply{}))
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate via %s: %w", p.desc.Name, err)
	}
	latency := time.Since(start)

	out := &Response{
		Text:     resp.Text(),
		Provider: p.desc.Name,
		Model:    p.desc.Model,
		Latency:  latency,
	}

	if structured {
		var reply StructuredReply
		if err := resp.Output(&reply); err != nil {
			// Keep the text; the composer's fallback parse decides
			// whether the turn can still proceed.
			p.logger.Warn("structured output decode failed",
				"provider", p.desc.Name,
				"error", err,
			)
		} else if raw, err := json.Marshal(reply); err == nil {
			out.Structured = raw
		}
	}

	p.logger.Debug("completion produced",
		"provider", p.desc.Name,
		"model", p.desc.Model,
		"latency", latency,
	)
	return out, nil
}

// generationConfig maps the request's tenant generation settings onto the
// backend-neutral Genkit config. Zero values mean "use the model default"
// and are left out; nil means no config option is added at all.
func generationConfig(req *Request) *ai.GenerationCommonConfig {
	if req.MaxTokens <= 0 && req.Temperature <= 0 {
		return nil
	}
	cfg := &ai.GenerationCommonConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		cfg.Temperature = float64(req.Temperature)
	}
	return cfg
}
