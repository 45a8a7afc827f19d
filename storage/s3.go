package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 storage settings; Endpoint is set when pointing at
// LocalStack or another S3-compatible service.
type Config struct {
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PresignTTL time.Duration
}

// Client wraps the S3 SDK for presigned uploads and object deletion.
type Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	ttl       time.Duration
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = sdkaws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := cfg.PresignTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &Client{
		s3:        client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		ttl:       ttl,
	}, nil
}

// PresignPut generates a presigned PUT URL for direct client uploads.
func (c *Client) PresignPut(ctx context.Context, key string) (string, map[string]string, error) {
	input := &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	}
	presigned, err := c.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = c.ttl
	})
	if err != nil {
		return "", nil, fmt.Errorf("presign put object: %w", err)
	}

	headers := make(map[string]string)
	for k, v := range presigned.SignedHeader {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return presigned.URL, headers, nil
}

// DeleteObject removes an object given either its bare key or a full URL
// pointing into the bucket.
func (c *Client) DeleteObject(ctx context.Context, ref string) error {
	key := c.keyFromRef(ref)
	if key == "" {
		return fmt.Errorf("cannot derive object key from %q", ref)
	}
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (c *Client) keyFromRef(ref string) string {
	if !strings.Contains(ref, "://") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	path := strings.TrimPrefix(u.Path, "/")
	// Path-style URLs carry the bucket as the first segment.
	if rest, ok := strings.CutPrefix(path, c.bucket+"/"); ok {
		return rest
	}
	return path
}
