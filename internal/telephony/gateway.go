package telephony

import (
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/utils"
)

// ErrUpstreamUnavailable wraps provider API failures so handlers can
// map them to a 502 without inspecting provider error types.
var ErrUpstreamUnavailable = errors.New("telephony provider unavailable")

// CallAPI is the slice of the Twilio REST surface the gateway needs.
// Tests substitute a fake.
type CallAPI interface {
	CreateCall(params *twilioopenapi.CreateCallParams) (*twilioopenapi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error)
	FetchCall(sid string, params *twilioopenapi.FetchCallParams) (*twilioopenapi.ApiV2010Call, error)
}

// Config holds provider credentials and webhook addressing.
type Config struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string

	// WebhookBase is the public base URL the provider calls back on.
	WebhookBase string
}

// Gateway places and controls outbound calls.
type Gateway struct {
	api CallAPI
	cfg Config
}

// NewGateway builds a gateway over the real Twilio client.
func NewGateway(cfg Config) *Gateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewGatewayWithAPI(client.Api, cfg)
}

// NewGatewayWithAPI builds a gateway over any CallAPI implementation.
func NewGatewayWithAPI(api CallAPI, cfg Config) *Gateway {
	return &Gateway{api: api, cfg: cfg}
}

// PlaceCall dials the number and points the call at our voice webhook,
// echoing callID so inbound events correlate without a SID lookup.
// It returns the provider's call SID.
func (g *Gateway) PlaceCall(to, callID string) (string, error) {
	params := &twilioopenapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(g.cfg.PhoneNumber)
	params.SetUrl(fmt.Sprintf("%s/api/webhooks/twilio/voice?callId=%s", g.cfg.WebhookBase, callID))
	params.SetMethod("POST")
	params.SetStatusCallback(fmt.Sprintf("%s/api/webhooks/twilio/voice?callId=%s", g.cfg.WebhookBase, callID))
	params.SetStatusCallbackMethod("POST")
	params.SetTimeout(30)

	resp, err := g.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("%w: create call: %v", ErrUpstreamUnavailable, err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("%w: create call returned no sid", ErrUpstreamUnavailable)
	}
	logger.Info("Call placed",
		zap.String("callId", callID),
		zap.String("sid", *resp.Sid),
		zap.String("to", utils.MaskPhone(to)))
	return *resp.Sid, nil
}

// EndCall asks the provider to complete the call.
func (g *Gateway) EndCall(providerCallID string) error {
	params := &twilioopenapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := g.api.UpdateCall(providerCallID, params); err != nil {
		return fmt.Errorf("%w: end call %s: %v", ErrUpstreamUnavailable, providerCallID, err)
	}
	return nil
}

// CallStatus fetches the provider-side status of a call.
func (g *Gateway) CallStatus(providerCallID string) (string, error) {
	resp, err := g.api.FetchCall(providerCallID, &twilioopenapi.FetchCallParams{})
	if err != nil {
		return "", fmt.Errorf("%w: fetch call %s: %v", ErrUpstreamUnavailable, providerCallID, err)
	}
	if resp.Status == nil {
		return "", nil
	}
	return *resp.Status, nil
}
