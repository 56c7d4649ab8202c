/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// HTTPFetcher retrieves tracks over HTTP(S). The locator is a full URL, or a
// path appended to the configured base URL.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPFetcher creates an HTTP fetch backend. baseURL may be empty when
// locators are absolute URLs.
func NewHTTPFetcher(baseURL string, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger.With().Str("component", "http-fetch").Logger(),
	}
}

// Fetch downloads the locator to dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator, dest string) error {
	url := locator
	if f.baseURL != "" {
		url = f.baseURL + "/" + locator
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:    classifyHTTPStatus(resp.StatusCode),
			Locator: locator,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := writeAtomic(dest, resp.Body); err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}
	return nil
}

func classifyHTTPStatus(status int) Kind {
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return NotFound
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired, http.StatusTooManyRequests:
		return QuotaOrAuthFailure
	default:
		return NetworkFailure
	}
}
