package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"gopkg.in/yaml.v3"
)

// S3Store mirrors deployment documents to an S3-compatible bucket so a run
// can be resumed from a different machine. It implements Store with the same
// one-document-per-deployment layout as FileStore.
type S3Store struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// S3Options configures an S3Store.
type S3Options struct {
	Endpoint  string // empty for AWS proper
	Region    string
	Bucket    string
	Prefix    string // key prefix, e.g. "deployments"
	AccessKey string
	SecretKey string
}

// NewS3Store creates a store over an S3-compatible bucket.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{s3: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

func (s *S3Store) key(id string) string {
	if s.prefix == "" {
		return id + ".yaml"
	}
	return s.prefix + "/" + id + ".yaml"
}

// Save uploads the deployment document.
func (s *S3Store) Save(ctx context.Context, d *Deployment) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal deployment %s: %w", d.ID, err)
	}

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(d.ID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload deployment %s: %w", d.ID, err)
	}
	return nil
}

// Load downloads the deployment document for id.
func (s *S3Store) Load(ctx context.Context, id string) (*Deployment, error) {
	result, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to download deployment %s: %w", id, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read deployment %s: %w", id, err)
	}

	var d Deployment
	if err := yaml.Unmarshal(buf.Bytes(), &d); err != nil {
		return nil, fmt.Errorf("failed to parse deployment %s: %w", id, err)
	}
	return &d, nil
}

// List returns the ids of all persisted deployments under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	result, err := s.s3.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	var ids []string
	for _, obj := range result.Contents {
		if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".yaml") {
			continue
		}
		key := strings.TrimSuffix(*obj.Key, ".yaml")
		if s.prefix != "" {
			key = strings.TrimPrefix(key, s.prefix+"/")
		}
		ids = append(ids, key)
	}
	return ids, nil
}

// isNoSuchKey checks for a missing object, falling back to API error codes
// for S3-compatible services that do not return the exact SDK error types.
func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}

	return false
}
