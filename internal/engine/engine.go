// Package engine orchestrates one conversational turn end to end: state
// load, reference resolution, retrieval, composition, routed completion,
// and the audit trail.
//
// Precondition (documented, not enforced): the transport collaborator
// serializes turns per conversation id, so HandleTurn is never invoked
// concurrently for the same conversation. Distinct conversations may run
// concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatcart/chatcart/internal/audit"
	"github.com/chatcart/chatcart/internal/compose"
	"github.com/chatcart/chatcart/internal/conversation"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider/router"
	"github.com/chatcart/chatcart/internal/reference"
	"github.com/chatcart/chatcart/internal/retrieval"
)

// Turn is one inbound customer message.
type Turn struct {
	TenantID       string
	ConversationID string
	Utterance      string

	// At is the receive instant. Zero means "now".
	At time.Time
}

// TurnResult is what the transport collaborator delivers back to the
// customer, plus the routing facts the caller may want to expose in
// diagnostics.
type TurnResult struct {
	ReplyText    string
	Resolution   reference.Resolution
	Citations    []int // 1-based indexes into the facts shown at composition
	ProviderUsed string
	Attempts     int
}

// Deps wires the engine's collaborators. All fields except Logger and Now
// are required.
type Deps struct {
	States   *conversation.Store
	Windows  *reference.Store
	Merger   *retrieval.Merger
	Sources  []retrieval.Source
	Composer *compose.Composer
	Router   *router.Router
	Recorder audit.Recorder
	Tenant   compose.TenantConfig

	Logger log.Logger
	Now    func() time.Time
}

// Engine runs the fulfillment pipeline for one tenant.
type Engine struct {
	states   *conversation.Store
	windows  *reference.Store
	merger   *retrieval.Merger
	sources  []retrieval.Source
	composer *compose.Composer
	router   *router.Router
	recorder audit.Recorder
	tenant   compose.TenantConfig
	logger   log.Logger
	now      func() time.Time
}

// New creates an Engine from its collaborators.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.States == nil:
		return nil, errors.New("conversation store is required")
	case deps.Windows == nil:
		return nil, errors.New("reference window store is required")
	case deps.Merger == nil:
		return nil, errors.New("retrieval merger is required")
	case deps.Composer == nil:
		return nil, errors.New("composer is required")
	case deps.Router == nil:
		return nil, errors.New("router is required")
	case deps.Recorder == nil:
		return nil, errors.New("audit recorder is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		states:   deps.States,
		windows:  deps.Windows,
		merger:   deps.Merger,
		sources:  deps.Sources,
		composer: deps.Composer,
		router:   deps.Router,
		recorder: deps.Recorder,
		tenant:   deps.Tenant,
		logger:   deps.Logger,
		now:      deps.Now,
	}, nil
}

// HandleTurn processes one customer message and returns the reply.
//
// Ambiguous and not-found references are normal outcomes: the composed
// request asks the model to clarify or answer without the reference. Only
// provider exhaustion and context cancellation surface as errors; on
// exhaustion the result still carries the static fallback text so the
// caller can deliver something.
func (e *Engine) HandleTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	at := turn.At
	if at.IsZero() {
		at = e.now()
	}
	turnID := uuid.New()

	state := e.states.LoadOrCreate(turn.TenantID, turn.ConversationID, at)
	state.Language = conversation.DetectLanguage(turn.Utterance)
	state.Energy = conversation.DetectEnergy(turn.Utterance)

	window, _ := e.windows.Window(turn.ConversationID, at)
	res := reference.Resolve(window, turn.Utterance)

	facts := e.merger.Retrieve(ctx, retrieval.Query{
		Text:     retrievalText(turn.Utterance, res),
		TenantID: turn.TenantID,
	}, e.sources)

	req := e.composer.Compose(state, turn.Utterance, res, facts, e.tenant)
	req.TurnID = turnID

	routed, err := e.router.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Canceled turns leave no audit trail; nothing was delivered.
			return nil, fmt.Errorf("turn canceled: %w", ctx.Err())
		}
		result := &TurnResult{
			ReplyText:  router.FallbackMessage,
			Resolution: res,
		}
		if routed != nil {
			result.Attempts = routed.Attempts
		}
		e.appendRecord(ctx, turn, turnID, res, facts, result, at)
		return result, err
	}

	// The router's validate hook already vetted this response, so a parse
	// failure here would be a programming error, not a provider fault.
	reply, err := compose.ParseReply(routed.Response)
	if err != nil {
		return nil, fmt.Errorf("parse routed reply: %w", err)
	}

	state.History.Add(turn.Utterance, reply.Text)
	state.Touch(at)

	result := &TurnResult{
		ReplyText:    reply.Text,
		Resolution:   res,
		Citations:    reply.Citations,
		ProviderUsed: routed.ProviderUsed,
		Attempts:     routed.Attempts,
	}
	e.appendRecord(ctx, turn, turnID, res, facts, result, at)
	return result, nil
}

// PresentItems records that the reply just delivered showed the customer a
// new enumerated list. The window is replaced wholesale; positional
// references in later turns resolve against this list until it expires.
func (e *Engine) PresentItems(conversationID string, items []reference.Item) {
	e.windows.SetWindow(conversationID, items, e.now())
}

// appendRecord writes the immutable audit row for a completed (or
// exhausted) turn. Audit failures are logged, never surfaced: the reply
// has already been committed to the customer.
func (e *Engine) appendRecord(
	ctx context.Context,
	turn Turn,
	turnID uuid.UUID,
	res reference.Resolution,
	facts retrieval.Result,
	result *TurnResult,
	at time.Time,
) {
	rec := audit.Record{
		ID:             uuid.New(),
		TenantID:       turn.TenantID,
		ConversationID: turn.ConversationID,
		TurnID:         turnID,
		Provider:       result.ProviderUsed,
		Attempts:       result.Attempts,
		Resolution:     res.Outcome.String(),
		CreatedAt:      at,
	}
	if res.Outcome == reference.Resolved {
		rec.ResolvedItemID = res.Item.ID
	}
	for _, n := range result.Citations {
		if n >= 1 && n <= len(facts.Facts) {
			c := facts.Facts[n-1].Citation
			rec.Sources = append(rec.Sources, c.Source+":"+c.Ref)
		}
	}
	if err := e.recorder.Append(ctx, rec); err != nil {
		e.logger.Error("audit append failed",
			"tenant_id", turn.TenantID,
			"turn_id", turnID,
			"error", err,
		)
	}
}

// retrievalText picks the retrieval query text: a resolved reference
// searches by the selected item's label, since the literal utterance
// ("the second one") carries no retrievable signal.
func retrievalText(utterance string, res reference.Resolution) string {
	if res.Outcome == reference.Resolved {
		return res.Item.Label
	}
	return utterance
}
