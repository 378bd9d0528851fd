package session

import (
	"regexp"
	"sync"
	"time"
)

// Session status values. Transitions are monotonic:
// initiated -> active -> ended.
const (
	StatusInitiated = "initiated"
	StatusActive    = "active"
	StatusEnded     = "ended"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidPhoneNumber reports whether s is an E.164 number.
func ValidPhoneNumber(s string) bool {
	return phonePattern.MatchString(s)
}

// Turn is one utterance in a conversation. Turns are immutable once
// appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// VoiceConfig selects the synthesis voice for a call.
type VoiceConfig struct {
	Model string  `json:"model,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// Session is the state of one call. All mutation goes through the
// Registry, which serializes access per callId via mu.
type Session struct {
	mu sync.Mutex

	CallID          string      `json:"callId"`
	ProviderCallID  string      `json:"providerCallId,omitempty"`
	PhoneNumber     string      `json:"phoneNumber"`
	KnowledgeBaseID string      `json:"knowledgeBaseId,omitempty"`
	CustomPrompt    string      `json:"customPrompt,omitempty"`
	Voice           VoiceConfig `json:"voiceConfig,omitempty"`
	Status          string      `json:"status"`
	History         []Turn      `json:"conversationHistory"`
	StartTime       time.Time   `json:"startTime"`
	LastActivity    time.Time   `json:"lastActivity"`
	EndTime         *time.Time  `json:"endTime,omitempty"`

	// SilenceRetries counts consecutive empty inputs on the live call.
	SilenceRetries int `json:"-"`

	// cancelGen aborts an in-flight response generation when the call
	// ends mid-turn.
	cancelGen func()
}

// Snapshot returns a copy of the session safe to serialize without
// holding its lock afterwards.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := Session{
		CallID:          s.CallID,
		ProviderCallID:  s.ProviderCallID,
		PhoneNumber:     s.PhoneNumber,
		KnowledgeBaseID: s.KnowledgeBaseID,
		CustomPrompt:    s.CustomPrompt,
		Voice:           s.Voice,
		Status:          s.Status,
		StartTime:       s.StartTime,
		LastActivity:    s.LastActivity,
		SilenceRetries:  s.SilenceRetries,
	}
	cp.History = append([]Turn(nil), s.History...)
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return cp
}

// HistoryCopy returns the conversation so far.
func (s *Session) HistoryCopy() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.History...)
}

// SetCancel stores the cancel function for an in-flight generation,
// replacing and invoking any previous one.
func (s *Session) SetCancel(cancel func()) {
	s.mu.Lock()
	prev := s.cancelGen
	s.cancelGen = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// CancelPending aborts any in-flight generation for this session.
func (s *Session) CancelPending() {
	s.mu.Lock()
	cancel := s.cancelGen
	s.cancelGen = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// BumpSilence increments the consecutive-silence counter and returns
// the new value.
func (s *Session) BumpSilence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SilenceRetries++
	return s.SilenceRetries
}

// ResetSilence clears the consecutive-silence counter after real input.
func (s *Session) ResetSilence() {
	s.mu.Lock()
	s.SilenceRetries = 0
	s.mu.Unlock()
}

// Stats summarizes a call for the status endpoint.
type Stats struct {
	CallID       string        `json:"callId"`
	Status       string        `json:"status"`
	PhoneNumber  string        `json:"phoneNumber"`
	Duration     time.Duration `json:"duration"`
	MessageCount int           `json:"messageCount"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
}

// Stats computes duration and message count from the current state.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := time.Now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	st := Stats{
		CallID:       s.CallID,
		Status:       s.Status,
		PhoneNumber:  s.PhoneNumber,
		Duration:     end.Sub(s.StartTime),
		MessageCount: len(s.History),
		StartTime:    s.StartTime,
	}
	if s.EndTime != nil {
		t := *s.EndTime
		st.EndTime = &t
	}
	return st
}
