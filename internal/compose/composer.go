// Package compose assembles the structured generation request for one turn:
// persona and tone directives, trimmed history, resolved reference rendered
// as explicit entity detail, and ranked facts with citation markers.
//
// The composed bundle, not the customer's raw text, is what the provider
// router ultimately sends.
package compose

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/chatcart/chatcart/internal/conversation"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
	"github.com/chatcart/chatcart/internal/reference"
	"github.com/chatcart/chatcart/internal/retrieval"
)

// DefaultHistoryTokenBudget bounds how much history survives trimming.
const DefaultHistoryTokenBudget = 8000

// TenantConfig carries the per-tenant generation settings.
type TenantConfig struct {
	Persona           string // tenant-authored persona preamble
	MaxTokens         int
	Temperature       float32
	RequireStructured bool
}

// Composer builds generation requests and parses provider replies.
//
// Composer is stateless and safe for concurrent use.
type Composer struct {
	historyBudget int
	logger        log.Logger
}

// New creates a Composer. historyBudget <= 0 uses
// DefaultHistoryTokenBudget.
func New(historyBudget int, logger log.Logger) *Composer {
	if historyBudget <= 0 {
		historyBudget = DefaultHistoryTokenBudget
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Composer{historyBudget: historyBudget, logger: logger}
}

// Compose builds the generation request for one turn. A resolved reference
// is rendered as explicit entity detail rather than the customer's
// elliptical phrase; an ambiguous one becomes a clarification directive.
func (c *Composer) Compose(
	state *conversation.State,
	utterance string,
	res reference.Resolution,
	facts retrieval.Result,
	cfg TenantConfig,
) *provider.Request {
	messages := trimHistory(state.History.Messages(), c.historyBudget)

	userText := utterance
	switch res.Outcome {
	case reference.Resolved:
		userText = fmt.Sprintf(
			"The customer selected this %s from the list previously shown: id=%s, label=%q. Their literal words were %q.",
			res.Item.Kind, res.Item.ID, res.Item.Label, utterance)
	case reference.Ambiguous:
		labels := make([]string, len(res.Matched))
		for i, item := range res.Matched {
			labels[i] = fmt.Sprintf("%q", item.Label)
		}
		userText = fmt.Sprintf(
			"The customer wrote %q, which matches several items (%s). Ask one short question to clarify which they mean; do not guess.",
			utterance, strings.Join(labels, ", "))
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(userText)))

	return &provider.Request{
		System:            c.systemDirective(state, facts, cfg),
		Messages:          messages,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		RequireStructured: cfg.RequireStructured,
		TenantID:          state.TenantID,
	}
}

// systemDirective renders persona, language and tone directives, and the
// ranked facts with citation markers.
func (c *Composer) systemDirective(state *conversation.State, facts retrieval.Result, cfg TenantConfig) string {
	var b strings.Builder

	persona := cfg.Persona
	if persona == "" {
		persona = "You are a helpful sales assistant for this shop."
	}
	b.WriteString(persona)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Respond in %s. Keep a %s tone.\n",
		languageName(state.Language), state.Energy)

	if len(facts.Facts) > 0 {
		b.WriteString("\nUse only the following facts when making claims, and cite them with their [n] marker:\n")
		for i, f := range facts.Facts {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, f.Citation.Source, f.Content)
		}
		if facts.Partial {
			b.WriteString("Some knowledge sources were unavailable; if the facts above do not cover the question, say you will check and follow up.\n")
		}
	} else {
		b.WriteString("\nNo supporting facts were retrieved. Answer only from the conversation itself; offer to check anything you are not sure about.\n")
	}

	return b.String()
}

// languageName renders the tag for the prompt ("English", "Japanese", ...).
func languageName(tag language.Tag) string {
	if tag == (language.Tag{}) {
		tag = language.English
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return "English"
	}
	return name
}

// estimateTokens is a rough count: rune count divided by 2 works
// conservatively for both Latin and CJK text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

func messageTokens(msg *ai.Message) int {
	total := 0
	for _, part := range msg.Content {
		total += estimateTokens(part.Text)
	}
	return total
}

// trimHistory keeps the newest messages within the token budget. Oldest go
// first; the slice is already bounded by count upstream.
func trimHistory(msgs []*ai.Message, budget int) []*ai.Message {
	total := 0
	for _, msg := range msgs {
		total += messageTokens(msg)
	}
	if total <= budget {
		return msgs
	}

	remaining := budget
	kept := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := messageTokens(msgs[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		kept++
	}
	return msgs[len(msgs)-kept:]
}
