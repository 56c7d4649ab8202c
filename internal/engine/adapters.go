/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"

	"github.com/friendsincode/skald_playout/internal/fetch"
)

// serviceFetcher adapts *fetch.Service to the Fetcher interface.
type serviceFetcher struct {
	svc *fetch.Service
}

// NewServiceFetcher wraps a fetch service for engine use.
func NewServiceFetcher(svc *fetch.Service) Fetcher {
	return serviceFetcher{svc: svc}
}

func (f serviceFetcher) FetchSync(ctx context.Context, locator, dest string) error {
	return f.svc.FetchSync(ctx, locator, dest)
}

func (f serviceFetcher) FetchAsync(ctx context.Context, locator, dest string) FetchJob {
	return f.svc.FetchAsync(ctx, locator, dest)
}
