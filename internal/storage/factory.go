package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open creates a store for the given connection identifier.
//
//	file:///path/to/root          local directory tree
//	s3://?region=...              Amazon S3 or an S3-compatible endpoint
//	gs://?project=...             Google Cloud Storage
//	anything else                 Azure storage connection string
func Open(ctx context.Context, connectionString string, opts Options) (Store, error) {
	connectionString = strings.TrimSpace(connectionString)
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	switch {
	case hasScheme(connectionString, "file"):
		u, err := url.Parse(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid local storage URL: %w", err)
		}
		root, err := ParseLocalURL(u)
		if err != nil {
			return nil, err
		}
		return NewLocalStorage(root, opts), nil

	case hasScheme(connectionString, "s3"):
		u, err := url.Parse(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid S3 URL: %w", err)
		}
		cfg, err := ParseS3URL(u)
		if err != nil {
			return nil, err
		}
		return NewS3Storage(ctx, cfg, opts)

	case hasScheme(connectionString, "gs"):
		u, err := url.Parse(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid GCS URL: %w", err)
		}
		cfg, err := ParseGCSURL(u)
		if err != nil {
			return nil, err
		}
		return NewGCSStorage(ctx, cfg, opts)

	default:
		return NewAzureStorage(connectionString, opts)
	}
}

// TypeOf returns the storage type Open would pick for a connection identifier
func TypeOf(connectionString string) string {
	connectionString = strings.TrimSpace(connectionString)
	switch {
	case hasScheme(connectionString, "file"):
		return localType
	case hasScheme(connectionString, "s3"):
		return s3Type
	case hasScheme(connectionString, "gs"):
		return gcsType
	default:
		return azureType
	}
}

var secretKeys = []string{
	"accountkey",
	"sharedaccesssignature",
	"secret_access_key",
	"session_token",
}

// Redact masks credentials in a connection identifier so it can be logged
func Redact(connectionString string) string {
	if TypeOf(connectionString) == azureType {
		parts := strings.Split(connectionString, ";")
		for i, part := range parts {
			key, _, ok := strings.Cut(part, "=")
			if ok && isSecretKey(strings.TrimSpace(key)) {
				parts[i] = key + "=REDACTED"
			}
		}
		return strings.Join(parts, ";")
	}

	u, err := url.Parse(connectionString)
	if err != nil {
		return "REDACTED"
	}
	q := u.Query()
	for key := range q {
		if isSecretKey(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isSecretKey(key string) bool {
	for _, secret := range secretKeys {
		if strings.EqualFold(key, secret) {
			return true
		}
	}
	return false
}

func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme)+3 && strings.EqualFold(s[:len(scheme)+3], scheme+"://")
}
