package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxreel/voxreel-agent/internal/media"
)

// ServiceError is a non-2xx response from a hosted service.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPClient calls a hosted speech or caption service.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// Prober measures audio when the service omits X-Audio-Duration.
	Prober media.Prober
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

type synthesizePayload struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	Format   string  `json:"format"`
}

// Synthesize posts the text and stores the returned audio in OutputDir.
func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error) {
	payload := synthesizePayload{
		Text:     req.Text,
		Voice:    req.Voice.Voice,
		Language: req.Voice.Language,
		Speed:    req.Voice.Speed,
		Pitch:    req.Voice.Pitch,
		Format:   "wav",
	}

	resp, err := c.post(ctx, "/v1/synthesize", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ext := ".wav"
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct == "audio/mpeg" {
		ext = ".mp3"
	}
	path := filepath.Join(req.OutputDir, req.SegmentID+ext)
	if err := writeBody(path, resp.Body); err != nil {
		return nil, err
	}

	var duration float64
	if h := resp.Header.Get("X-Audio-Duration"); h != "" {
		duration, _ = strconv.ParseFloat(h, 64)
	}
	if duration <= 0 && c.Prober != nil {
		if d, err := c.Prober.Probe(ctx, path); err == nil {
			duration = d.Duration
		}
	}
	if duration <= 0 {
		duration = EstimateSpeechDuration(req.Text, req.Voice.Speed)
	}

	if c.logger != nil {
		c.logger.Info("synthesized narration", "segment_id", req.SegmentID, "duration", duration)
	}
	return &Synthesis{AudioPath: path, Duration: duration}, nil
}

type captionPayload struct {
	SegmentID string       `json:"segment_id"`
	Text      string       `json:"text"`
	Start     float64      `json:"start"`
	End       float64      `json:"end"`
	Style     CaptionStyle `json:"style"`
}

// RenderCaptions posts the segment and stores the returned subtitle file.
func (c *HTTPClient) RenderCaptions(ctx context.Context, req CaptionRequest) (string, error) {
	resp, err := c.post(ctx, "/v1/captions", captionPayload{
		SegmentID: req.SegmentID,
		Text:      req.Text,
		Start:     req.Start,
		End:       req.End,
		Style:     req.Style,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ext := ".srt"
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct == "text/x-ssa" || ct == "text/x-ass" {
		ext = ".ass"
	}
	path := filepath.Join(req.OutputDir, req.SegmentID+ext)
	if err := writeBody(path, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}

// post sends a JSON body and returns the response when it is 2xx.
func (c *HTTPClient) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &ServiceError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
}

// writeBody streams r to path via a temp file so a failed download never
// leaves a truncated artifact behind.
func writeBody(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("service returned an empty body")
	}
	return os.Rename(tmp.Name(), path)
}
