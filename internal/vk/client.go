package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider error codes the client classifies specially.
const (
	ErrCodeTooManyRequests = 6  // "Too many requests per second"
	ErrCodeFloodControl    = 9  // "Flood control"
	ErrCodeCaptchaRequired = 14 // needs a human, never retried
)

// Config holds VK API client configuration
type Config struct {
	BaseURL       string
	APIVersion    string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// APIError is a provider-side rejection carried in the response body.
type APIError struct {
	Method  string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk: %s failed with code %d: %s", e.Method, e.Code, e.Message)
}

// RateLimited reports whether the error is a rate-limit class rejection
// eligible for backoff and retry.
func (e *APIError) RateLimited() bool {
	return e.Code == ErrCodeTooManyRequests || e.Code == ErrCodeFloodControl
}

// NeedsManualAction reports whether the error requires out-of-band human
// intervention (captcha). Never retried.
func (e *APIError) NeedsManualAction() bool {
	return e.Code == ErrCodeCaptchaRequired
}

// Client executes VK API calls for a single access token. It holds no state
// between calls beyond the token and transport.
type Client struct {
	cfg        Config
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// NewClient creates a client bound to one bearer token.
func NewClient(cfg Config, token string, logger *slog.Logger) *Client {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		cfg:        cfg,
		token:      token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		sleep:      time.Sleep,
	}
}

type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    *apiErrorBody   `json:"error"`
}

type apiErrorBody struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Call executes one VK method. Rate-limit rejections and transport failures
// are retried with exponential backoff (RetryDelay * 2^(attempt-1)) up to
// RetryAttempts; every other provider error surfaces immediately.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		raw, err := c.do(ctx, method, params)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.RateLimited() {
			return nil, err
		}
		// Rate-limit or transport failure: back off and try again.

		if attempt == c.cfg.RetryAttempts {
			break
		}

		backoff := c.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
		c.logger.Warn("VK call failed, retrying",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", backoff),
			slog.Any("error", err),
		)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.sleep(backoff)
	}

	return nil, fmt.Errorf("vk: %s: retry attempts exhausted: %w", method, lastErr)
}

func (c *Client) do(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	form := url.Values{}
	for key, values := range params {
		form[key] = values
	}
	form.Set("access_token", c.token)
	form.Set("v", c.cfg.APIVersion)

	endpoint := c.cfg.BaseURL + "/method/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("vk: %s: failed to build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk: %s: request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vk: %s: failed to decode response: %w", method, err)
	}

	if decoded.Error != nil {
		return nil, &APIError{
			Method:  method,
			Code:    decoded.Error.ErrorCode,
			Message: decoded.Error.ErrorMsg,
		}
	}
	if decoded.Response == nil {
		return nil, fmt.Errorf("vk: %s: empty response", method)
	}

	return decoded.Response, nil
}

// callInto executes a method and unmarshals the success payload into out.
func (c *Client) callInto(ctx context.Context, method string, params url.Values, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vk: %s: failed to unmarshal response: %w", method, err)
	}
	return nil
}

// UploadFile performs a one-shot multipart POST to a pre-obtained upload URL.
// Upload URLs are single-use and short-lived, so there is no retry; any
// non-2xx status is terminal.
func (c *Client) UploadFile(ctx context.Context, uploadURL string, data []byte, fieldName string) (json.RawMessage, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile(fieldName, "image.png")
	if err != nil {
		return nil, fmt.Errorf("vk: failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("vk: failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("vk: failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("vk: failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk: upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("vk: upload failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vk: failed to read upload response: %w", err)
	}

	return raw, nil
}

// UploadPhoto uploads image bytes and decodes the standard photo upload ticket.
func (c *Client) UploadPhoto(ctx context.Context, uploadURL string, data []byte) (*PhotoUpload, error) {
	raw, err := c.UploadFile(ctx, uploadURL, data, "photo")
	if err != nil {
		return nil, err
	}

	var ticket PhotoUpload
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, fmt.Errorf("vk: failed to decode upload ticket: %w", err)
	}
	return &ticket, nil
}
