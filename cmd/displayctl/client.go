package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/koios/matrx-display/pkg/models"
)

const contentTypeCBOR = "application/cbor"

// Client talks to the HTTP API of one display
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the display at host. A bare host or
// host:port is treated as http.
func NewClient(host string, timeout time.Duration, retries int) *Client {
	base := host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{http: client}
}

// APIError is a non-2xx answer from the display
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("display returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (c *Client) do(req *resty.Request, method, path string) (string, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return "", fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return resp.String(), nil
}

// PushConfig installs cfg as the active scene. A nil cfg clears the display.
func (c *Client) PushConfig(ctx context.Context, cfg *models.Configuration) (string, error) {
	var body []byte
	if cfg == nil {
		body = []byte{0xf6}
	} else {
		var err error
		if body, err = models.EncodeConfiguration(cfg); err != nil {
			return "", fmt.Errorf("failed to encode configuration: %w", err)
		}
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentTypeCBOR).
		SetBody(body)
	return c.do(req, resty.MethodPost, "/api/config")
}

// UploadSprite stores res under key
func (c *Client) UploadSprite(ctx context.Context, key string, res *models.Resource) (string, error) {
	body, err := models.EncodeResource(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode sprite %s: %w", key, err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetHeader("Content-Type", contentTypeCBOR).
		SetBody(body)
	return c.do(req, resty.MethodPost, "/api/storage/upload")
}

// Exists reports whether key is present in the display's store
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	req := c.http.R().SetContext(ctx).SetQueryParam("key", key)
	text, err := c.do(req, resty.MethodPost, "/api/storage/exists")
	if err != nil {
		return false, err
	}
	return text == "Item exists", nil
}

// Delete removes key from the display's store
func (c *Client) Delete(ctx context.Context, key string) (string, error) {
	req := c.http.R().SetContext(ctx).SetQueryParam("key", key)
	return c.do(req, resty.MethodPost, "/api/storage/delete")
}

// Format wipes the display's store and clears its scene
func (c *Client) Format(ctx context.Context) (string, error) {
	return c.do(c.http.R().SetContext(ctx), resty.MethodPost, "/api/storage/format")
}

// SetState turns the panel on or off
func (c *Client) SetState(ctx context.Context, on bool) (string, error) {
	req := c.http.R().SetContext(ctx).SetQueryParam("on", strconv.FormatBool(on))
	return c.do(req, resty.MethodPost, "/api/state")
}

// SetBrightness sets the panel brightness
func (c *Client) SetBrightness(ctx context.Context, brightness uint8) (string, error) {
	req := c.http.R().SetContext(ctx).SetQueryParam("brightness", strconv.Itoa(int(brightness)))
	return c.do(req, resty.MethodPost, "/api/settings")
}

// Status fetches the display's status flags as raw JSON
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.do(c.http.R().SetContext(ctx), resty.MethodGet, "/api/status")
}

// Render asks the display to bake an applet into a sprite
func (c *Client) Render(ctx context.Context, appID, key string, params map[string]string) (*models.RenderResult, error) {
	var result models.RenderResult
	query := url.Values{"app": {appID}}
	if key != "" {
		query.Set("key", key)
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetResult(&result)
	if len(params) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody(params)
	}

	if _, err := c.do(req, resty.MethodPost, "/api/storage/render"); err != nil {
		return nil, err
	}
	return &result, nil
}

// FlushAppCache drops the runtime cache of an applet
func (c *Client) FlushAppCache(ctx context.Context, appID string) (string, error) {
	req := c.http.R().SetContext(ctx).SetQueryParam("app", appID)
	return c.do(req, resty.MethodPost, "/apps/flush")
}
