// Package recognition talks to the external face recognition service.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/constants"
	"golang.org/x/time/rate"
)

const defaultRecognitionURL = "http://localhost:5000"

// ErrRecognitionFailed is matched by every error the client returns.
// The service's own error details are only kept as wrapped text.
var ErrRecognitionFailed = errors.New("face recognition failed")

// Observer is notified after every call with the operation name, its duration and its error.
type Observer func(op string, d time.Duration, err error)

// Client computes face embeddings and classifications using the recognition service.
// Calls are single-shot; retries belong to the caller.
type Client struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRateLimit paces outbound calls to perSecond requests. Zero or less means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new recognition client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultRecognitionURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: constants.DefaultRecognitionTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetObserver installs a hook called after every request.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// BaseURL returns the service address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Embed computes the face embedding of an image.
func (c *Client) Embed(ctx context.Context, image []byte) (embedding []float64, err error) {
	defer c.observe("embed", time.Now(), &err)

	body, err := c.postMultipart(ctx, "/embed", "image", "image", image)
	if err != nil {
		return nil, failed("embed", err)
	}

	if err := json.Unmarshal(body, &embedding); err != nil {
		return nil, failed("embed", fmt.Errorf("failed to parse response: %w", err))
	}
	if len(embedding) == 0 {
		return nil, failed("embed", errors.New("empty embedding returned"))
	}
	return embedding, nil
}

// Classify asks the trained classifier which attendee the image shows.
func (c *Client) Classify(ctx context.Context, image []byte) (id uuid.UUID, err error) {
	defer c.observe("classify", time.Now(), &err)

	body, err := c.postMultipart(ctx, "/classify", "image", "image", image)
	if err != nil {
		return uuid.Nil, failed("classify", err)
	}

	var raw string
	if err := json.Unmarshal(body, &raw); err != nil {
		return uuid.Nil, failed("classify", fmt.Errorf("failed to parse response: %w", err))
	}
	id, err = uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, failed("classify", fmt.Errorf("invalid attendee id %q: %w", raw, err))
	}
	return id, nil
}

// UploadClassifier replaces the classifier model used by Classify and returns the service's status text.
func (c *Client) UploadClassifier(ctx context.Context, model []byte) (status string, err error) {
	defer c.observe("upload_classifier", time.Now(), &err)

	body, err := c.postMultipart(ctx, "/upload_classifier", "model", "classifier", model)
	if err != nil {
		return "", failed("upload classifier", err)
	}

	// Some service versions answer with a JSON string, others with plain text.
	if err := json.Unmarshal(body, &status); err == nil {
		return status, nil
	}
	return strings.TrimSpace(string(body)), nil
}

// postMultipart posts data as a single multipart file part and returns the response body.
func (c *Client) postMultipart(ctx context.Context, endpoint, field, filename string, data []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", detectMIMEType(data))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func (c *Client) observe(op string, start time.Time, err *error) {
	if c.observer != nil {
		c.observer(op, time.Since(start), *err)
	}
}

func failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRecognitionFailed, op, err)
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	return "application/octet-stream"
}
