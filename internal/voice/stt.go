package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
)

// Recognizer turns one buffered utterance into a transcript. It is a
// request/response capability: streaming recognizers fit the same
// interface by buffering internally and returning once the caller's
// end-of-utterance boundary is reached, matching spec.md's "for
// non-streaming recognizers, the session buffers a bounded window and
// posts it at end-of-utterance" rule for both cases.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, language string) (transcript string, err error)
}

// MockRecognizer is a deterministic stand-in for tests and for
// deployments with no STT vendor configured: it returns Transcript
// unconditionally.
type MockRecognizer struct {
	Transcript string
}

// Recognize returns the configured transcript, ignoring the audio.
func (m *MockRecognizer) Recognize(ctx context.Context, audio []byte, language string) (string, error) {
	return m.Transcript, nil
}

// HTTPRecognizer adapts a vendor's request/response STT HTTP API: POST
// the raw audio bytes, decode a {"transcript": "..."} JSON response. It
// is grounded on internal/embedclient's http-client-plus-json-decode
// shape, the pattern the platform already uses for every other
// request/response vendor call.
type HTTPRecognizer struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPRecognizer builds an HTTPRecognizer with a bounded-timeout
// client.
func NewHTTPRecognizer(baseURL, apiKey string) *HTTPRecognizer {
	return &HTTPRecognizer{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 15 * time.Second}}
}

type sttResponse struct {
	Transcript string `json:"transcript"`
}

// Recognize POSTs the audio buffer to BaseURL and returns the vendor's
// transcript.
func (h *HTTPRecognizer) Recognize(ctx context.Context, audio []byte, language string) (string, error) {
	url := fmt.Sprintf("%s?language=%s", h.BaseURL, language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", apierr.Wrap(apierr.KindInternal, "build stt request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.KindUpstreamTransient, "stt request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", apierr.New(apierr.KindUpstreamTransient, fmt.Sprintf("stt backend returned %d", resp.StatusCode))
	}

	var out sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierr.Wrap(apierr.KindInternal, "decode stt response", err)
	}
	return out.Transcript, nil
}
