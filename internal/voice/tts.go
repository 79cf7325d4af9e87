package voice

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/cache"
)

// Synthesizer renders text to speech for a given voice and emotion, scoped
// to a project so the audio cache namespace below never leaks a clip
// across tenants.
type Synthesizer interface {
	Synthesize(ctx context.Context, projectID, text, voice, emotion string) (audio []byte, err error)
}

// MockSynthesizer is a deterministic stand-in for tests: it returns the
// text itself as the "audio" payload so a test can assert on it without a
// real codec.
type MockSynthesizer struct {
	Calls int
}

// Synthesize records the call and returns text as raw bytes.
func (m *MockSynthesizer) Synthesize(ctx context.Context, projectID, text, voice, emotion string) ([]byte, error) {
	m.Calls++
	return []byte(text), nil
}

// HTTPSynthesizer POSTs a {text, voice, emotion} JSON body to a vendor TTS
// endpoint and returns the raw audio response body.
type HTTPSynthesizer struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPSynthesizer builds an HTTPSynthesizer with a bounded-timeout
// client.
func NewHTTPSynthesizer(baseURL, apiKey string) *HTTPSynthesizer {
	return &HTTPSynthesizer{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 20 * time.Second}}
}

// Synthesize calls the vendor endpoint and returns its raw audio bytes.
// projectID is unused by the vendor call itself; it exists so this type
// satisfies Synthesizer alongside CachingSynthesizer.
func (h *HTTPSynthesizer) Synthesize(ctx context.Context, projectID, text, voice, emotion string) ([]byte, error) {
	body := fmt.Sprintf(`{"text":%q,"voice":%q,"emotion":%q}`, text, voice, emotion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "build tts request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTransient, "tts request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apierr.New(apierr.KindUpstreamTransient, fmt.Sprintf("tts backend returned %d", resp.StatusCode))
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "read tts response", err)
	}
	return buf.Bytes(), nil
}

// audioCacheTTL bounds how long a synthesized clip is reused before the
// vendor is called again for the same (text, voice, emotion) triple.
const audioCacheTTL = 24 * time.Hour

// CachingSynthesizer wraps a Synthesizer with internal/cache's tts:*
// namespace, keyed by a hash of (text, voice, emotion) per spec.md's
// audio cache requirement: an identical utterance within the TTL reuses
// the cached clip instead of calling the vendor again.
type CachingSynthesizer struct {
	next  Synthesizer
	cache *cache.Cache
}

// NewCachingSynthesizer wraps next with cache-backed memoization.
func NewCachingSynthesizer(next Synthesizer, c *cache.Cache) *CachingSynthesizer {
	return &CachingSynthesizer{next: next, cache: c}
}

func audioCacheKey(text, voice, emotion string) string {
	h := sha256.Sum256([]byte(text + "\x00" + voice + "\x00" + emotion))
	return hex.EncodeToString(h[:])
}

// Synthesize returns a cached clip if one exists for (text, voice,
// emotion), otherwise calls the wrapped Synthesizer and caches the
// result.
func (c *CachingSynthesizer) Synthesize(ctx context.Context, projectID, text, voice, emotion string) ([]byte, error) {
	key := audioCacheKey(text, voice, emotion)
	if cached, err := c.cache.Get(ctx, cache.NamespaceTTS, projectID, key); err == nil {
		return cached, nil
	}

	audio, err := c.next.Synthesize(ctx, projectID, text, voice, emotion)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, cache.NamespaceTTS, projectID, key, audio, audioCacheTTL)
	return audio, nil
}
