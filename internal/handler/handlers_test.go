package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/echoline-ai/echoline/internal/dialog"
	"github.com/echoline-ai/echoline/internal/knowledge"
	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/internal/speech"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/config"
)

type stubCallAPI struct {
	nextSid string
	ended   []string
}

func (s *stubCallAPI) CreateCall(params *twilioopenapi.CreateCallParams) (*twilioopenapi.ApiV2010Call, error) {
	sid := s.nextSid
	if sid == "" {
		sid = "CA-test"
	}
	return &twilioopenapi.ApiV2010Call{Sid: &sid}, nil
}

func (s *stubCallAPI) UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error) {
	s.ended = append(s.ended, sid)
	return &twilioopenapi.ApiV2010Call{Sid: &sid}, nil
}

func (s *stubCallAPI) FetchCall(sid string, params *twilioopenapi.FetchCallParams) (*twilioopenapi.ApiV2010Call, error) {
	status := "in-progress"
	return &twilioopenapi.ApiV2010Call{Sid: &sid, Status: &status}, nil
}

type testEnv struct {
	engine   *gin.Engine
	handlers *Handlers
	registry *session.Registry
	index    *knowledge.Index
	api      *stubCallAPI
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithKey(t, "")
}

func newTestEnvWithKey(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.GlobalConfig = &config.Config{APIPrefix: "/api", APISecretKey: apiKey}

	registry := session.NewRegistry(session.Options{
		MaxTurns: 50, MaxAge: time.Hour, GraceWindow: time.Minute,
	}, nil)
	testRegistry := session.NewRegistry(session.Options{
		MaxTurns: 20, MaxAge: time.Hour, GraceWindow: time.Minute, AllowAnonymous: true,
	}, nil)
	index := knowledge.NewIndex()
	generator := responder.NewGenerator(nil, index, responder.Options{}, nil)
	controller := dialog.NewController(registry, generator, dialog.Options{})
	api := &stubCallAPI{}
	gateway := telephony.NewGatewayWithAPI(api, telephony.Config{
		PhoneNumber: "+15550000000",
		WebhookBase: "https://example.com",
	})

	h := NewHandlers(Deps{
		Registry:     registry,
		TestRegistry: testRegistry,
		Index:        index,
		Generator:    generator,
		Controller:   controller,
		Gateway:      gateway,
		Speech:       speech.NewClient("test", "http://127.0.0.1:1"),
	})
	engine := gin.New()
	h.Register(engine)
	return &testEnv{engine: engine, handlers: h, registry: registry, index: index, api: api}
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success, "body: %s", w.Body.String())
	return body.Data
}

func TestInitiateCall(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber": "+15551234567",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeData(t, w)
	assert.NotEmpty(t, data["callId"])
	assert.Equal(t, "CA-test", data["providerCallId"])

	s, ok := e.registry.LookupByProviderID("CA-test")
	require.True(t, ok)
	assert.Equal(t, session.StatusActive, s.Snapshot().Status)
}

func TestInitiateCallInvalidPhone(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber": "555-1234",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiateCallAutoSelectsKnowledgeBase(t *testing.T) {
	e := newTestEnv(t)
	kb, err := e.index.Create("default", "", []knowledge.DocumentInput{
		{Title: "doc", Content: "Some content here."},
	})
	require.NoError(t, err)

	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber": "+15551234567",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, kb.ID, data["knowledgeBaseId"])
}

func TestInitiateCallUnknownKnowledgeBase(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber":     "+15551234567",
		"knowledgeBaseId": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallStatusAndEnd(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber": "+15551234567",
	})
	callID := decodeData(t, w)["callId"].(string)

	w = e.doJSON(t, http.MethodGet, "/api/calls/"+callID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, session.StatusActive, data["status"])
	assert.Equal(t, "in-progress", data["providerStatus"])

	w = e.doJSON(t, http.MethodPost, "/api/calls/"+callID+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, e.api.ended, "CA-test")

	w = e.doJSON(t, http.MethodGet, "/api/calls/"+callID+"/status", nil)
	data = decodeData(t, w)
	assert.Equal(t, session.StatusEnded, data["status"])
}

func TestCallStatusSummary(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodPost, "/api/calls/initiate", gin.H{
		"phoneNumber": "+15551234567",
	})
	callID := decodeData(t, w)["callId"].(string)
	e.registry.AppendTurn(callID, session.RoleUser, "hello")
	e.registry.AppendTurn(callID, session.RoleAssistant, "hi there")

	w = e.doJSON(t, http.MethodGet, "/api/calls/"+callID+"/status?summary=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	// No model configured, so the count-based summary answers.
	assert.Equal(t, "Conversation with 2 messages.", data["summary"])
}

func TestCallStatusNotFound(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodGet, "/api/calls/nope/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/api/knowledge/bases", gin.H{
		"name": "FAQ",
		"documents": []gin.H{
			{"title": "Pricing", "content": "The starter plan costs ninety nine dollars per month."},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Data knowledge.KnowledgeBase `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	kbID := created.Data.ID
	require.NotEmpty(t, kbID)

	w = e.doJSON(t, http.MethodPost, "/api/knowledge/bases/"+kbID+"/query", gin.H{
		"query": "how much does the starter plan cost",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["count"])

	w = e.doJSON(t, http.MethodDelete, "/api/knowledge/bases/"+kbID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.doJSON(t, http.MethodGet, "/api/knowledge/bases/"+kbID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTestingChatKeepsSession(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/api/testing/chat", gin.H{
		"message": "hello there",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	sessionID := data["sessionId"].(string)
	assert.NotEmpty(t, data["response"])

	w = e.doJSON(t, http.MethodPost, "/api/testing/chat", gin.H{
		"sessionId": sessionID,
		"message":   "what is your pricing",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.doJSON(t, http.MethodGet, "/api/testing/sessions/"+sessionID, nil)
	data = decodeData(t, w)
	history := data["history"].([]interface{})
	assert.Len(t, history, 4)
}

func TestGatherWebhookSpeaksFallback(t *testing.T) {
	e := newTestEnv(t)

	form := url.Values{}
	form.Set("CallSid", "CA555")
	form.Set("SpeechResult", "tell me about pricing")
	w := e.doForm(t, "/api/webhooks/twilio/gather", form)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "xml")
	assert.Contains(t, body, "<Say")
	assert.Contains(t, body, "<Gather")

	// The unknown SID got a placeholder session.
	_, ok := e.registry.LookupByProviderID("CA555")
	assert.True(t, ok)
}

func TestVoiceWebhookGreets(t *testing.T) {
	e := newTestEnv(t)

	form := url.Values{}
	form.Set("CallSid", "CA777")
	form.Set("CallStatus", "in-progress")
	w := e.doForm(t, "/api/webhooks/twilio/voice", form)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "How can I help you today?")
}

func TestVoiceWebhookTerminalStatusEndsSession(t *testing.T) {
	e := newTestEnv(t)
	s, err := e.registry.Create(session.CreateSpec{PhoneNumber: "+15551234567"})
	require.NoError(t, err)
	_, err = e.registry.AttachProviderID(s.CallID, "CA888")
	require.NoError(t, err)

	form := url.Values{}
	form.Set("CallSid", "CA888")
	form.Set("CallStatus", "completed")
	w := e.doForm(t, "/api/webhooks/twilio/voice", form)

	require.Equal(t, http.StatusOK, w.Code)
	got, ok := e.registry.Lookup(s.CallID)
	require.True(t, ok)
	assert.Equal(t, session.StatusEnded, got.Snapshot().Status)
}

func TestTranscriptWebhookGate(t *testing.T) {
	e := newTestEnv(t)
	s, err := e.registry.Create(session.CreateSpec{PhoneNumber: "+15551234567"})
	require.NoError(t, err)

	// Incomplete transcripts are acknowledged but not processed.
	w := e.doJSON(t, http.MethodPost, "/api/webhooks/assemblyai?callId="+s.CallID, gin.H{
		"transcript_id": "tr-1",
		"status":        "processing",
		"text":          "",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.HistoryCopy())

	// Completed with text drives a turn.
	w = e.doJSON(t, http.MethodPost, "/api/webhooks/assemblyai?callId="+s.CallID, gin.H{
		"transcript_id": "tr-1",
		"status":        "completed",
		"text":          "what are your features",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.NotEmpty(t, data["reply"])
	assert.Len(t, s.HistoryCopy(), 2)
}

func TestAPIKeyGuardsManagementOnly(t *testing.T) {
	e := newTestEnvWithKey(t, "sekrit")

	// Management without the key is rejected.
	w := e.doJSON(t, http.MethodGet, "/api/calls/active", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// With the key it passes.
	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Webhooks stay open.
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "in-progress")
	w = e.doForm(t, "/api/webhooks/twilio/voice", form)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "ok", data["status"])
}
