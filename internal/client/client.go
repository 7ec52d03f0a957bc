// Package client is the device side of the protocol: every request is signed with the
// device secret the same way the gateway verifies it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brewlink/internal/commands"
	"brewlink/internal/devauth"
)

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Code)
}

type Client struct {
	BaseURL   string
	DeviceKey string
	Secret    string
	HTTP      *http.Client

	Now func() time.Time
}

func New(baseURL, deviceKey, secret string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		DeviceKey: deviceKey,
		Secret:    secret,
		HTTP:      &http.Client{Timeout: 20 * time.Second},
		Now:       time.Now,
	}
}

func (c *Client) signedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	ts := strconv.FormatInt(c.Now().Unix(), 10)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(devauth.HeaderDeviceID, c.DeviceKey)
	req.Header.Set(devauth.HeaderTimestamp, ts)
	req.Header.Set(devauth.HeaderSignature, devauth.Sign(c.Secret, ts, body))
	return req, nil
}

// do sends the request and decodes a 200 body into out (if non-nil).
// It returns the status code; 204 is not an error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = b
	}
	req, err := c.signedRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return resp.StatusCode, nil
	case resp.StatusCode >= 300:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(b, &e)
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Code: e.Error}
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// Poll fetches the next command; nil when none is pending.
func (c *Client) Poll(ctx context.Context) (*commands.Command, error) {
	var out struct {
		Command *commands.Command `json:"command"`
	}
	code, err := c.do(ctx, http.MethodGet, "/commands", nil, &out)
	if err != nil || code == http.StatusNoContent {
		return nil, err
	}
	return out.Command, nil
}

func (c *Client) Ack(ctx context.Context, commandID, status, message string) error {
	in := map[string]string{"command_id": commandID, "status": status}
	if message != "" {
		in["message"] = message
	}
	_, err := c.do(ctx, http.MethodPost, "/commands/ack", in, nil)
	return err
}

// Counts is the counts object of a telemetry report.
type Counts struct {
	Idle       int64 `json:"idle,omitempty"`
	Coffee     int64 `json:"coffee,omitempty"`
	Cappuccino int64 `json:"cappuccino,omitempty"`
	Powders    int64 `json:"powders,omitempty"`
	Unknown    int64 `json:"unknown,omitempty"`
}

type Report struct {
	IntervalS int64  `json:"interval_s,omitempty"`
	Counts    Counts `json:"counts"`
	FWVersion string `json:"fw_version,omitempty"`
}

// SendTelemetry posts a report and returns the bucket it landed in.
func (c *Client) SendTelemetry(ctx context.Context, r Report) (string, error) {
	var out struct {
		TSBucket string `json:"ts_bucket"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/telemetry", r, &out); err != nil {
		return "", err
	}
	return out.TSBucket, nil
}

type ProductsResult struct {
	Applied  float64  `json:"applied"`
	Warnings []string `json:"warnings"`
}

// SendProducts posts dispense counts for inventory accounting.
func (c *Client) SendProducts(ctx context.Context, counts Counts) (ProductsResult, error) {
	var out ProductsResult
	in := map[string]Counts{"counts": {Coffee: counts.Coffee, Cappuccino: counts.Cappuccino, Powders: counts.Powders}}
	_, err := c.do(ctx, http.MethodPost, "/telemetry/products", in, &out)
	return out, err
}
