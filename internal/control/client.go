// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/admission"
)

// DefaultClientTimeout bounds control requests other than saveplayers.
const DefaultClientTimeout = 2 * time.Second

// Client talks to a running instance over its control socket.
type Client struct {
	http *http.Client
}

// NewClient creates a client for the socket at socketPath. A zero timeout
// means no client-side limit; callers then bound requests with ctx.
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: timeout,
		},
	}
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.call(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

// Status queries /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.call(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Shutdown asks the instance to engage lockdown and stop.
func (c *Client) Shutdown(ctx context.Context, reason string) (ShutdownResponse, error) {
	var resp ShutdownResponse
	err := c.call(ctx, http.MethodPost, "/shutdown", ShutdownRequest{Reason: reason}, &resp)
	return resp, err
}

// SavePlayers asks the instance to save every active player.
func (c *Client) SavePlayers(ctx context.Context) (admission.SaveSummary, error) {
	var resp admission.SaveSummary
	err := c.call(ctx, http.MethodPost, "/saveplayers", nil, &resp)
	return resp, err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return oops.Code("CONTROL_REQUEST_FAILED").Wrap(err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://gatekeeper"+path, r)
	if err != nil {
		return oops.Code("CONTROL_REQUEST_FAILED").Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code("CONTROL_UNREACHABLE").With("path", path).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return oops.Code("CONTROL_REQUEST_FAILED").
			With("path", path).
			With("status", resp.StatusCode).
			Errorf("control request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code("CONTROL_DECODE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
