/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileFetcher copies tracks from a locally mounted source tree. Used when the
// media volume is NFS/FUSE mounted and no object-store transport is needed.
type FileFetcher struct {
	root   string
	logger zerolog.Logger
}

// NewFileFetcher creates a filesystem fetch backend rooted at root.
func NewFileFetcher(root string, logger zerolog.Logger) *FileFetcher {
	return &FileFetcher{
		root:   root,
		logger: logger.With().Str("component", "file-fetch").Logger(),
	}
}

// Fetch copies the locator's file to dest.
func (f *FileFetcher) Fetch(ctx context.Context, locator, dest string) error {
	src := locator
	if f.root != "" && !filepath.IsAbs(locator) {
		src = filepath.Join(f.root, locator)
	}

	in, err := os.Open(src)
	if err != nil {
		return &Error{Kind: classifyFSError(err), Locator: locator, Err: err}
	}
	defer in.Close()

	if err := ctx.Err(); err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}

	if err := writeAtomic(dest, in); err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}
	return nil
}

func classifyFSError(err error) Kind {
	switch {
	case os.IsNotExist(err):
		return NotFound
	case os.IsPermission(err):
		return QuotaOrAuthFailure
	default:
		return NetworkFailure
	}
}
