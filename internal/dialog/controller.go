package dialog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/metrics"
)

// Conversation states. A call moves Greeting -> Listening ->
// Processing -> Responding and then either back to Listening or on to
// Ending.
const (
	StateGreeting   = "greeting"
	StateListening  = "listening"
	StateProcessing = "processing"
	StateResponding = "responding"
	StateEnding     = "ending"
)

// Spoken boilerplate. These are read aloud, so they stay short.
const (
	greetingText = "Hello! Thank you for calling. How can I help you today?"
	retryText    = "I didn't catch that. Could you please say that again?"
	farewellText = "Thank you for calling. Have a great day. Goodbye!"
	apologyText  = "I'm sorry, I'm having trouble processing your request right now. Could you please repeat that?"
)

// Instruction tells the telephony layer what to do next: speak, then
// optionally listen for the caller or hang up.
type Instruction struct {
	Say           string
	Listen        bool
	ListenTimeout time.Duration
	ActionURL     string
	Hangup        bool
	State         string
}

// Options tunes the Controller.
type Options struct {
	// InitialListenTimeout applies to the first listen after greeting.
	InitialListenTimeout time.Duration

	// RetryListenTimeout applies to every subsequent listen.
	RetryListenTimeout time.Duration

	// SilenceRetries is how many consecutive empty inputs are re-prompted
	// before the call is ended.
	SilenceRetries int

	// GatherAction is the webhook path the provider posts caller input to.
	GatherAction string
}

// Controller drives the webhook-driven turn loop. It composes the
// session registry and response generator; it holds no per-call state
// of its own, so one Controller serves every concurrent call.
type Controller struct {
	registry  *session.Registry
	generator *responder.Generator
	opts      Options
}

// NewController wires the turn loop.
func NewController(registry *session.Registry, generator *responder.Generator, opts Options) *Controller {
	if opts.InitialListenTimeout <= 0 {
		opts.InitialListenTimeout = 15 * time.Second
	}
	if opts.RetryListenTimeout <= 0 {
		opts.RetryListenTimeout = 10 * time.Second
	}
	if opts.SilenceRetries <= 0 {
		opts.SilenceRetries = 1
	}
	if opts.GatherAction == "" {
		opts.GatherAction = "/api/webhooks/twilio/gather"
	}
	return &Controller{registry: registry, generator: generator, opts: opts}
}

// Greet opens the conversation when the provider reports the call
// answered. correlationID is our callId if it was echoed back;
// providerCallID always accompanies the event.
func (c *Controller) Greet(correlationID, providerCallID string) Instruction {
	s := c.resolve(correlationID, providerCallID)
	logger.Info("Call answered",
		zap.String("callId", s.CallID),
		zap.String("state", StateGreeting))
	return Instruction{
		Say:           greetingText,
		Listen:        true,
		ListenTimeout: c.opts.InitialListenTimeout,
		ActionURL:     c.actionURL(s.CallID),
		State:         StateGreeting,
	}
}

// HandleInput processes one caller input event: recognized speech,
// DTMF digits, or silence. It always returns a speakable instruction;
// internal failures degrade to an apology rather than silence.
func (c *Controller) HandleInput(ctx context.Context, correlationID, providerCallID, speech, digits string) Instruction {
	s := c.resolve(correlationID, providerCallID)
	if s.Snapshot().Status == session.StatusEnded {
		// Late input after the farewell: hang up without speaking again.
		return Instruction{Hangup: true, State: StateEnding}
	}

	message := strings.TrimSpace(speech)
	if digits != "" {
		message = "User pressed: " + digits
	}

	if message == "" {
		return c.handleSilence(s)
	}
	s.ResetSilence()

	logger.Info("Caller input",
		zap.String("callId", s.CallID),
		zap.String("state", StateProcessing),
		zap.Int("length", len(message)))

	reply := c.process(ctx, s, message)
	metrics.TurnsProcessed.WithLabelValues("ok").Inc()
	return Instruction{
		Say:           reply,
		Listen:        true,
		ListenTimeout: c.opts.RetryListenTimeout,
		ActionURL:     c.actionURL(s.CallID),
		State:         StateResponding,
	}
}

// HandleStatus reacts to provider call-progress events. Terminal
// statuses end the session.
func (c *Controller) HandleStatus(correlationID, providerCallID, status string) {
	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled":
	default:
		return
	}
	s, ok := c.lookup(correlationID, providerCallID)
	if !ok {
		return
	}
	if _, err := c.registry.End(s.CallID); err != nil {
		logger.Warn("End on status event failed",
			zap.String("callId", s.CallID),
			zap.Error(err))
	}
}

// process runs generation without holding any registry lock, so other
// calls proceed while a model attempt is in flight. Hanging up cancels
// the attempt through the session's stored cancel func.
func (c *Controller) process(ctx context.Context, s *session.Session, message string) string {
	snap := s.Snapshot()
	history := snap.History
	c.registry.AppendTurn(s.CallID, session.RoleUser, message)

	genCtx, cancel := context.WithCancel(ctx)
	s.SetCancel(cancel)
	defer s.SetCancel(nil)

	res := c.generator.Generate(genCtx, responder.Request{
		Message:         message,
		History:         history,
		KnowledgeBaseID: snap.KnowledgeBaseID,
		CustomPrompt:    snap.CustomPrompt,
	})

	reply := res.Content
	if genCtx.Err() != nil || reply == "" {
		metrics.TurnsProcessed.WithLabelValues("degraded").Inc()
		reply = apologyText
	}
	c.registry.AppendTurn(s.CallID, session.RoleAssistant, reply)
	return reply
}

// handleSilence re-prompts once, then says goodbye exactly once and
// hangs up.
func (c *Controller) handleSilence(s *session.Session) Instruction {
	snap := s.Snapshot()
	if snap.SilenceRetries >= c.opts.SilenceRetries {
		logger.Info("Silence budget exhausted, ending call",
			zap.String("callId", s.CallID))
		if _, err := c.registry.End(s.CallID); err != nil {
			logger.Warn("End after silence failed",
				zap.String("callId", s.CallID),
				zap.Error(err))
		}
		metrics.TurnsProcessed.WithLabelValues("silence").Inc()
		return Instruction{Say: farewellText, Hangup: true, State: StateEnding}
	}

	s.BumpSilence()
	return Instruction{
		Say:           retryText,
		Listen:        true,
		ListenTimeout: c.opts.RetryListenTimeout,
		ActionURL:     c.actionURL(s.CallID),
		State:         StateListening,
	}
}

// resolve finds the session for an inbound event, falling back to a
// placeholder so a live call is never left untracked. When the event
// echoes a correlation id, the placeholder is registered under that id
// so every subsequent event for the call resolves to the same session.
func (c *Controller) resolve(correlationID, providerCallID string) *session.Session {
	if s, ok := c.lookup(correlationID, providerCallID); ok {
		return s
	}
	if correlationID != "" {
		if providerCallID != "" {
			if s, err := c.registry.AttachProviderID(correlationID, providerCallID); err == nil {
				return s
			}
		}
		return c.registry.EnsureSession(correlationID)
	}
	if providerCallID == "" {
		return c.registry.EnsureSession(uuid.NewString())
	}
	s, err := c.registry.Placeholder(providerCallID)
	if err != nil {
		// Conflicting concurrent placeholder; the other one won.
		if existing, ok := c.registry.LookupByProviderID(providerCallID); ok {
			return existing
		}
		return c.registry.EnsureSession(uuid.NewString())
	}
	return s
}

func (c *Controller) lookup(correlationID, providerCallID string) (*session.Session, bool) {
	if correlationID != "" {
		if s, ok := c.registry.Lookup(correlationID); ok {
			return s, true
		}
	}
	if providerCallID != "" {
		if s, ok := c.registry.LookupByProviderID(providerCallID); ok {
			return s, true
		}
	}
	return nil, false
}

func (c *Controller) actionURL(callID string) string {
	return c.opts.GatherAction + "?callId=" + callID
}
