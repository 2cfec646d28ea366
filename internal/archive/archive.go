// Package archive stores finished call transcripts in S3-compatible object
// storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of the S3 client the archive uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configure the S3 client.
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// Transcript is one archived call.
type Transcript struct {
	CallID         string
	OrganizationID string
	BranchID       string
	Text           string
}

// S3 writes transcripts under <prefix><organization>/<branch>/<call>.txt.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// New wraps an existing client.
func New(client PutObjectAPI, bucket, prefix string) (*S3, error) {
	if client == nil {
		return nil, errors.New("archive: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("archive: bucket is required")
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

// Open loads AWS configuration and builds an S3 archive. Static keys are
// used when both are set, otherwise the default credential chain.
func Open(ctx context.Context, opts Options) (*S3, error) {
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return New(client, opts.Bucket, opts.Prefix)
}

// Key returns the object key for t.
func (a *S3) Key(t Transcript) string {
	return a.prefix + path.Join(t.OrganizationID, t.BranchID, t.CallID+".txt")
}

// Put uploads the transcript and returns its key.
func (a *S3) Put(ctx context.Context, t Transcript) (string, error) {
	if t.CallID == "" {
		return "", errors.New("archive: call id is required")
	}
	key := a.Key(t)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(t.Text)),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"call-id":         t.CallID,
			"organization-id": t.OrganizationID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}
