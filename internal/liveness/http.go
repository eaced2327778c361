// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package liveness

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/gatekeeper/internal/admission"
)

// HTTPOracle asks the host over HTTP: GET {base}/{id} answers 200 for a live
// session and 404 for a gone one. 5xx and transport errors are retried.
type HTTPOracle struct {
	base       string
	client     *http.Client
	maxRetries uint64
	retryBase  time.Duration
}

var _ admission.LivenessOracle = (*HTTPOracle)(nil)

// NewHTTPOracle creates an oracle for baseURL.
func NewHTTPOracle(baseURL string, client *http.Client) (*HTTPOracle, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("LIVENESS_CONFIG_INVALID").
			With("url", baseURL).
			Errorf("liveness url must be absolute")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &HTTPOracle{
		base:       strings.TrimSuffix(baseURL, "/"),
		client:     client,
		maxRetries: 2,
		retryBase:  100 * time.Millisecond,
	}, nil
}

// Exists implements admission.LivenessOracle.
func (o *HTTPOracle) Exists(ctx context.Context, id admission.SessionID) (bool, error) {
	target := o.base + "/" + url.PathEscape(string(id))

	var exists bool
	backoff := retry.WithMaxRetries(o.maxRetries, retry.NewExponential(o.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := o.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			exists = true
			return nil
		case resp.StatusCode == http.StatusNotFound:
			exists = false
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(oops.Errorf("host answered %s", resp.Status))
		default:
			return oops.Errorf("unexpected status %s", resp.Status)
		}
	})
	if err != nil {
		return false, oops.Code("LIVENESS_CHECK_FAILED").
			With("session_id", string(id)).
			Wrap(err)
	}
	return exists, nil
}
