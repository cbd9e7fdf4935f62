package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gcsType = "gcs"

// GCSStorage implements the Store interface for Google Cloud Storage
type GCSStorage struct {
	client    *gcs.Client
	projectID string
	logger    *slog.Logger
}

// GCSConfig contains GCS specific configuration
type GCSConfig struct {
	Endpoint  string
	ProjectID string
	Anonymous bool
}

// ParseGCSURL reads a GCS configuration from an identifier of the form
// gs://?project=my-project&endpoint=http://localhost:4443/storage/v1/&anonymous=true
func ParseGCSURL(u *url.URL) (GCSConfig, error) {
	q := u.Query()
	cfg := GCSConfig{
		Endpoint:  q.Get("endpoint"),
		ProjectID: q.Get("project"),
	}

	if v := q.Get("anonymous"); v != "" {
		anonymous, err := strconv.ParseBool(v)
		if err != nil {
			return GCSConfig{}, fmt.Errorf("invalid anonymous value %q: %w", v, err)
		}
		cfg.Anonymous = anonymous
	}

	return cfg, nil
}

// NewGCSStorage creates a GCS client using application default credentials
// unless the configuration asks for anonymous access
func NewGCSStorage(ctx context.Context, gcsConfig GCSConfig, opts Options) (*GCSStorage, error) {
	var clientOpts []option.ClientOption
	if gcsConfig.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(gcsConfig.Endpoint))
	}
	if gcsConfig.Anonymous {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}

	return &GCSStorage{
		client:    client,
		projectID: gcsConfig.ProjectID,
		logger:    opts.logger(),
	}, nil
}

// OpenReader opens an object reader
func (g *GCSStorage) OpenReader(ctx context.Context, ref BlobRef) (*Object, error) {
	if err := requireBlockKind(gcsType, ref); err != nil {
		return nil, err
	}

	r, err := g.client.Bucket(ref.Container).Object(ref.Name).NewReader(ctx)
	if err != nil {
		return nil, g.wrapError("open object", ref, err)
	}

	g.logger.Debug("Opened GCS object stream",
		"url", "gs://"+ref.Container+"/"+ref.Name,
		"size", r.Attrs.Size,
	)

	return &Object{
		Body:        r,
		Size:        r.Attrs.Size,
		ContentType: r.Attrs.ContentType,
	}, nil
}

// Exists checks if an object exists by fetching its attributes
func (g *GCSStorage) Exists(ctx context.Context, ref BlobRef) (bool, error) {
	if err := requireBlockKind(gcsType, ref); err != nil {
		return false, err
	}

	if _, err := g.client.Bucket(ref.Container).Object(ref.Name).Attrs(ctx); err != nil {
		if isGCSNotFound(err) {
			return false, nil
		}
		return false, g.wrapError("get object attributes", ref, err)
	}
	return true, nil
}

// CreateContainerIfMissing creates the bucket in the configured project
func (g *GCSStorage) CreateContainerIfMissing(ctx context.Context, bucket string) error {
	ref := BlobRef{Container: bucket}
	handle := g.client.Bucket(bucket)

	_, err := handle.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gcs.ErrBucketNotExist) {
		return g.wrapError("get bucket attributes", ref, err)
	}

	if g.projectID == "" {
		return fmt.Errorf("creating GCS bucket %q: project is required", bucket)
	}
	if err := handle.Create(ctx, g.projectID, nil); err != nil {
		return g.wrapError("create bucket", ref, err)
	}

	g.logger.Info("Created GCS bucket", "bucket", bucket, "project", g.projectID)
	return nil
}

// Type returns the storage type
func (g *GCSStorage) Type() string {
	return gcsType
}

// Close closes the GCS client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

func (g *GCSStorage) wrapError(op string, ref BlobRef, err error) error {
	if isContextError(err) {
		return err
	}
	if isGCSNotFound(err) {
		return notFound(ref, err)
	}

	storeErr := &StoreError{Backend: gcsType, Op: op, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		storeErr.StatusCode = apiErr.Code
		if len(apiErr.Errors) > 0 {
			storeErr.Code = apiErr.Errors[0].Reason
		}
	}
	return storeErr
}

func isGCSNotFound(err error) bool {
	return errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist)
}
