package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const s3Type = "s3"

// S3Storage implements the Store interface for Amazon S3 and S3-compatible services
type S3Storage struct {
	client *s3.Client
	region string
	logger *slog.Logger
}

// S3Config contains S3 specific configuration
type S3Config struct {
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ParseS3URL reads an S3 configuration from an identifier of the form
// s3://?region=eu-west-1&endpoint=http://localhost:9000&path_style=true
func ParseS3URL(u *url.URL) (S3Config, error) {
	q := u.Query()
	cfg := S3Config{
		Region:          q.Get("region"),
		Endpoint:        q.Get("endpoint"),
		AccessKeyID:     q.Get("access_key_id"),
		SecretAccessKey: q.Get("secret_access_key"),
		SessionToken:    q.Get("session_token"),
	}

	if v := q.Get("path_style"); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return S3Config{}, fmt.Errorf("invalid path_style value %q: %w", v, err)
		}
		cfg.UsePathStyle = pathStyle
	}

	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return S3Config{}, fmt.Errorf("access_key_id and secret_access_key must be set together")
	}

	return cfg, nil
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(ctx context.Context, s3Config S3Config, opts Options) (*S3Storage, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if s3Config.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(s3Config.Region))
	}

	if s3Config.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3Config.AccessKeyID,
				s3Config.SecretAccessKey,
				s3Config.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
		}
		o.UsePathStyle = s3Config.UsePathStyle
	})

	return &S3Storage{
		client: client,
		region: awsCfg.Region,
		logger: opts.logger(),
	}, nil
}

// OpenReader starts a GetObject request and returns its body
func (s *S3Storage) OpenReader(ctx context.Context, ref BlobRef) (*Object, error) {
	if err := requireBlockKind(s3Type, ref); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		return nil, s.wrapError("get object", ref, err)
	}

	obj := &Object{
		Body:        result.Body,
		Size:        -1,
		ContentType: aws.ToString(result.ContentType),
	}
	if result.ContentLength != nil {
		obj.Size = *result.ContentLength
	}

	s.logger.Debug("Opened S3 object stream",
		"bucket", ref.Container,
		"objectKey", ref.Name,
		"size", obj.Size,
	)

	return obj, nil
}

// Exists checks if an object exists with a HeadObject request
func (s *S3Storage) Exists(ctx context.Context, ref BlobRef) (bool, error) {
	if err := requireBlockKind(s3Type, ref); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, s.wrapError("head object", ref, err)
	}
	return true, nil
}

// CreateContainerIfMissing creates the bucket when HeadBucket reports it missing
func (s *S3Storage) CreateContainerIfMissing(ctx context.Context, bucket string) error {
	ref := BlobRef{Container: bucket}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return s.wrapError("head bucket", ref, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return s.wrapError("create bucket", ref, err)
	}

	s.logger.Info("Created S3 bucket", "bucket", bucket, "region", s.region)
	return nil
}

// Type returns the storage type
func (s *S3Storage) Type() string {
	return s3Type
}

// Close is a no-op for the S3 client
func (s *S3Storage) Close() error {
	return nil
}

func (s *S3Storage) wrapError(op string, ref BlobRef, err error) error {
	if isContextError(err) {
		return err
	}
	if isS3NotFound(err) {
		return notFound(ref, err)
	}

	storeErr := &StoreError{Backend: s3Type, Op: op, Err: err}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		storeErr.StatusCode = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		storeErr.Code = apiErr.ErrorCode()
	}
	return storeErr
}

// isS3NotFound checks if an error is a not found error
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nsb *s3types.NoSuchBucket
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nsb) || errors.As(err, &nf)
}
