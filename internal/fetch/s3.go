/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"
)

// S3Config contains settings for the S3 fetch backend.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	UsePathStyle    bool   // Required for MinIO
}

// S3Fetcher retrieves tracks from S3-compatible object storage. The locator
// is the object key within the configured bucket.
type S3Fetcher struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewS3Fetcher creates an S3 fetch backend.
func NewS3Fetcher(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Fetcher{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "s3-fetch").Logger(),
	}, nil
}

// Fetch downloads one object to dest.
func (f *S3Fetcher) Fetch(ctx context.Context, locator, dest string) error {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return &Error{Kind: classifyS3(err), Locator: locator, Err: err}
	}
	defer out.Body.Close()

	if err := writeAtomic(dest, out.Body); err != nil {
		return &Error{Kind: NetworkFailure, Locator: locator, Err: err}
	}
	return nil
}

// classifyS3 maps AWS errors onto the fetch failure taxonomy.
func classifyS3(err error) Kind {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return NotFound
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return NotFound
		case http.StatusForbidden, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusPaymentRequired:
			return QuotaOrAuthFailure
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return NotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "SlowDown":
			return QuotaOrAuthFailure
		}
	}

	return NetworkFailure
}
