package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/pkg/events"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/utils"
)

var (
	// ErrInvalidSpec is returned when a create request fails validation.
	ErrInvalidSpec = errors.New("invalid call specification")

	// ErrSessionNotFound is returned by operations that require an
	// existing session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCorrelationConflict is returned when a session already bound to
	// one provider call id is offered a different one.
	ErrCorrelationConflict = errors.New("provider call id conflict")
)

// Options tunes a Registry. The live registry and the offline testing
// registry share the implementation with different caps.
type Options struct {
	// MaxTurns bounds conversationHistory to the most recent N turns.
	MaxTurns int

	// MaxAge is how long a session may live regardless of activity.
	MaxAge time.Duration

	// GraceWindow is how long an ended session stays queryable.
	GraceWindow time.Duration

	// AllowAnonymous permits sessions without a phone number (offline
	// testing sessions).
	AllowAnonymous bool
}

// CreateSpec is the validated input for a new session.
type CreateSpec struct {
	PhoneNumber     string
	KnowledgeBaseID string
	CustomPrompt    string
	Voice           VoiceConfig
}

// Registry holds live call sessions in memory. Sessions expire after
// MaxAge no matter how active they are; ended sessions linger for the
// grace window so late webhooks and status queries still resolve.
type Registry struct {
	opts  Options
	store *gocache.Cache
	bus   *events.Bus

	// byProvider maps providerCallId to callId.
	mu         sync.Mutex
	byProvider map[string]string
}

// NewRegistry creates an empty registry. The bus may be nil.
func NewRegistry(opts Options, bus *events.Bus) *Registry {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 50
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 5 * time.Minute
	}
	r := &Registry{
		opts:       opts,
		store:      gocache.New(opts.MaxAge, 0),
		bus:        bus,
		byProvider: make(map[string]string),
	}
	r.store.OnEvicted(func(callID string, v interface{}) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		s.CancelPending()
		r.mu.Lock()
		if s.ProviderCallID != "" && r.byProvider[s.ProviderCallID] == callID {
			delete(r.byProvider, s.ProviderCallID)
		}
		r.mu.Unlock()
		logger.Info("Session reaped",
			zap.String("callId", callID),
			zap.String("status", s.Status))
		r.emit(events.EventSessionReaped, map[string]interface{}{
			"callId": callID,
			"status": s.Status,
		})
	})
	return r
}

func (r *Registry) emit(eventType string, data map[string]interface{}) {
	if r.bus != nil {
		r.bus.Emit(eventType, "session", data)
	}
}

// Create validates the spec and registers a new session in the
// initiated state.
func (r *Registry) Create(spec CreateSpec) (*Session, error) {
	phone := utils.SanitizePhone(spec.PhoneNumber)
	if !r.opts.AllowAnonymous && !ValidPhoneNumber(phone) {
		return nil, fmt.Errorf("%w: phone number must be E.164", ErrInvalidSpec)
	}
	now := time.Now()
	s := &Session{
		CallID:          uuid.NewString(),
		PhoneNumber:     phone,
		KnowledgeBaseID: spec.KnowledgeBaseID,
		CustomPrompt:    spec.CustomPrompt,
		Voice:           spec.Voice,
		Status:          StatusInitiated,
		StartTime:       now,
		LastActivity:    now,
	}
	r.store.Set(s.CallID, s, gocache.DefaultExpiration)
	logger.Info("Session created",
		zap.String("callId", s.CallID),
		zap.String("phone", utils.MaskPhone(phone)))
	r.emit(events.EventCallCreated, map[string]interface{}{"callId": s.CallID})
	return s, nil
}

// Lookup resolves a session by callId.
func (r *Registry) Lookup(callID string) (*Session, bool) {
	v, ok := r.store.Get(callID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// LookupByProviderID resolves a session by the telephony provider's
// call id.
func (r *Registry) LookupByProviderID(providerCallID string) (*Session, bool) {
	r.mu.Lock()
	callID, ok := r.byProvider[providerCallID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.Lookup(callID)
}

// AttachProviderID binds a provider call id to a session. Re-attaching
// the same id is a no-op; a different id is a conflict. An unknown
// callId creates a placeholder session so the live call stays
// trackable.
func (r *Registry) AttachProviderID(callID, providerCallID string) (*Session, error) {
	if providerCallID == "" {
		return nil, fmt.Errorf("%w: empty provider call id", ErrInvalidSpec)
	}
	// Reject a conflicting binding up front so an unknown callId does
	// not leave a stray placeholder behind.
	r.mu.Lock()
	if bound, exists := r.byProvider[providerCallID]; exists && bound != callID {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already bound to %s",
			ErrCorrelationConflict, providerCallID, bound)
	}
	r.mu.Unlock()

	s, ok := r.Lookup(callID)
	if !ok {
		s = r.placeholder(callID)
	}

	s.mu.Lock()
	switch s.ProviderCallID {
	case "":
		s.ProviderCallID = providerCallID
	case providerCallID:
		s.mu.Unlock()
		return s, nil
	default:
		existing := s.ProviderCallID
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already bound to %s",
			ErrCorrelationConflict, callID, existing)
	}
	if s.Status == StatusInitiated {
		s.Status = StatusActive
	}
	s.mu.Unlock()

	r.mu.Lock()
	if bound, exists := r.byProvider[providerCallID]; exists && bound != callID {
		r.mu.Unlock()
		s.mu.Lock()
		s.ProviderCallID = ""
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already bound to %s",
			ErrCorrelationConflict, providerCallID, bound)
	}
	r.byProvider[providerCallID] = callID
	r.mu.Unlock()

	logger.Info("Provider call id attached",
		zap.String("callId", callID),
		zap.String("providerCallId", providerCallID))
	return s, nil
}

// Placeholder registers a session for a provider call id that arrived
// before (or without) a management-side create. It carries the default
// prompt and is immediately active.
func (r *Registry) Placeholder(providerCallID string) (*Session, error) {
	return r.AttachProviderID(uuid.NewString(), providerCallID)
}

// EnsureSession resolves callID, registering a placeholder when the
// id is unknown. Webhook and socket events that echo a correlation id
// but carry no provider call id thread through here, so every event
// for one call lands on one session.
func (r *Registry) EnsureSession(callID string) *Session {
	if s, ok := r.Lookup(callID); ok {
		return s
	}
	return r.placeholder(callID)
}

func (r *Registry) placeholder(callID string) *Session {
	now := time.Now()
	s := &Session{
		CallID:       callID,
		PhoneNumber:  "unknown",
		Status:       StatusActive,
		StartTime:    now,
		LastActivity: now,
	}
	if err := r.store.Add(callID, s, gocache.DefaultExpiration); err != nil {
		// Lost a race with another event for the same call.
		if existing, ok := r.Lookup(callID); ok {
			return existing
		}
		r.store.Set(callID, s, gocache.DefaultExpiration)
	}
	logger.Warn("Placeholder session created", zap.String("callId", callID))
	r.emit(events.EventCallCreated, map[string]interface{}{"callId": callID})
	return s
}

// AppendTurn records one utterance, trimming history to the configured
// cap. Unknown sessions are logged and skipped rather than failed: the
// caller is usually mid-call and an error cannot be surfaced to the
// caller anyway.
func (r *Registry) AppendTurn(callID, role, content string) {
	s, ok := r.Lookup(callID)
	if !ok {
		logger.Warn("Turn for unknown session dropped",
			zap.String("callId", callID),
			zap.String("role", role))
		return
	}
	s.mu.Lock()
	s.History = append(s.History, Turn{Role: role, Content: content, Timestamp: time.Now()})
	if n := len(s.History); n > r.opts.MaxTurns {
		s.History = s.History[n-r.opts.MaxTurns:]
	}
	s.LastActivity = time.Now()
	s.mu.Unlock()
	r.emit(events.EventTurnProcessed, map[string]interface{}{
		"callId": callID,
		"role":   role,
	})
}

// End marks a session ended and re-arms its expiry to the grace
// window. Ending an already ended session only refreshes the window.
func (r *Registry) End(callID string) (*Session, error) {
	s, ok := r.Lookup(callID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.CancelPending()
	s.mu.Lock()
	if s.Status != StatusEnded {
		now := time.Now()
		s.Status = StatusEnded
		s.EndTime = &now
		s.LastActivity = now
	}
	s.mu.Unlock()
	r.store.Set(callID, s, r.opts.GraceWindow)
	logger.Info("Session ended", zap.String("callId", callID))
	r.emit(events.EventCallEnded, map[string]interface{}{"callId": callID})
	return s, nil
}

// Active returns snapshots of all sessions not yet ended.
func (r *Registry) Active() []Session {
	items := r.store.Items()
	out := make([]Session, 0, len(items))
	for _, item := range items {
		s, ok := item.Object.(*Session)
		if !ok {
			continue
		}
		snap := s.Snapshot()
		if snap.Status != StatusEnded {
			out = append(out, snap)
		}
	}
	return out
}

// Count returns the number of sessions currently held, including those
// in their grace window.
func (r *Registry) Count() int {
	return r.store.ItemCount()
}

// Reap evicts every expired session. Driven by the hourly sweep task;
// expired entries are also invisible to lookups in the meantime.
func (r *Registry) Reap() {
	r.store.DeleteExpired()
}
