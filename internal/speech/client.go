package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrSpeechService wraps speech provider failures.
var ErrSpeechService = errors.New("speech service error")

// Transcript statuses reported by the provider.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Transcript is the provider's view of one transcription job.
type Transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the transcription provider (AssemblyAI-compatible
// API).
type Client struct {
	http *resty.Client
}

// NewClient builds a speech client. baseURL defaults are handled by
// config; apiKey goes into the authorization header on every request.
func NewClient(apiKey, baseURL string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("authorization", apiKey).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: http}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

// UploadAudio pushes raw audio to the provider and returns the URL to
// transcribe from.
func (c *Client) UploadAudio(ctx context.Context, audio []byte) (string, error) {
	var out uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/octet-stream").
		SetBody(audio).
		SetResult(&out).
		Post("/upload")
	if err != nil {
		return "", fmt.Errorf("%w: upload: %v", ErrSpeechService, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: upload: status %d", ErrSpeechService, resp.StatusCode())
	}
	return out.UploadURL, nil
}

type transcriptRequest struct {
	AudioURL   string `json:"audio_url"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// SubmitTranscription starts an async transcription job. When
// webhookURL is set the provider posts the result there on completion.
func (c *Client) SubmitTranscription(ctx context.Context, audioURL, webhookURL string) (*Transcript, error) {
	var out Transcript
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(transcriptRequest{AudioURL: audioURL, WebhookURL: webhookURL}).
		SetResult(&out).
		Post("/transcript")
	if err != nil {
		return nil, fmt.Errorf("%w: submit: %v", ErrSpeechService, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: submit: status %d", ErrSpeechService, resp.StatusCode())
	}
	return &out, nil
}

// GetTranscription fetches the current state of a job.
func (c *Client) GetTranscription(ctx context.Context, id string) (*Transcript, error) {
	var out Transcript
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/transcript/" + id)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrSpeechService, id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrSpeechService, id, resp.StatusCode())
	}
	return &out, nil
}

// WaitForTranscription polls until the job completes or fails. Used by
// the synchronous transcription endpoint; the webhook path avoids
// polling entirely.
func (c *Client) WaitForTranscription(ctx context.Context, id string, interval time.Duration) (*Transcript, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t, err := c.GetTranscription(ctx, id)
		if err != nil {
			return nil, err
		}
		switch t.Status {
		case StatusCompleted:
			return t, nil
		case StatusError:
			return nil, fmt.Errorf("%w: transcription failed: %s", ErrSpeechService, t.Error)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
