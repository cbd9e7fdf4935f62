package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		connection string
		expected   string
	}{
		{"UseDevelopmentStorage=true", "azure-blob"},
		{"DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5;EndpointSuffix=core.windows.net", "azure-blob"},
		{"BlobEndpoint=https://acct.blob.core.windows.net/;SharedAccessSignature=sv=2022&sig=abc", "azure-blob"},
		{"file:///tmp/blobs", "local"},
		{"FILE:///tmp/blobs", "local"},
		{"s3://?region=eu-west-1", "s3"},
		{"s3://", "s3"},
		{"gs://?project=demo", "gcs"},
	}

	for _, tt := range tests {
		t.Run(tt.connection, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeOf(tt.connection))
		})
	}
}

func TestOpen_RejectsEmptyConnection(t *testing.T) {
	_, err := Open(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string is required")
}

func TestOpen_Local(t *testing.T) {
	root := t.TempDir()

	store, err := Open(context.Background(), "file://"+root, Options{})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "local", store.Type())
	local, ok := store.(*LocalStorage)
	require.True(t, ok)
	assert.Equal(t, root, local.basePath)
}

func TestOpen_AzureDevelopmentStorage(t *testing.T) {
	store, err := Open(context.Background(), "UseDevelopmentStorage=true", Options{})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "azure-blob", store.Type())
}

func TestOpen_AzureInvalidConnectionString(t *testing.T) {
	_, err := Open(context.Background(), "not-a-connection-string", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create Azure client")
}

func TestOpen_S3InvalidQuery(t *testing.T) {
	_, err := Open(context.Background(), "s3://?path_style=maybe", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid path_style")

	_, err = Open(context.Background(), "s3://?access_key_id=AKIA", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestExpandDevelopmentStorage(t *testing.T) {
	assert.Equal(t, developmentStorageConnectionString, expandDevelopmentStorage("UseDevelopmentStorage=true"))
	assert.Equal(t, developmentStorageConnectionString, expandDevelopmentStorage("UseDevelopmentStorage=TRUE;DevelopmentStorageProxyUri=http://proxy"))

	cs := "AccountName=acct;AccountKey=a2V5"
	assert.Equal(t, cs, expandDevelopmentStorage(cs))
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name       string
		connection string
		expected   string
	}{
		{
			name:       "azure account key",
			connection: "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=c2VjcmV0;EndpointSuffix=core.windows.net",
			expected:   "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=REDACTED;EndpointSuffix=core.windows.net",
		},
		{
			name:       "azure sas",
			connection: "BlobEndpoint=https://acct.blob.core.windows.net/;SharedAccessSignature=sv=2022&sig=abc",
			expected:   "BlobEndpoint=https://acct.blob.core.windows.net/;SharedAccessSignature=REDACTED",
		},
		{
			name:       "development storage",
			connection: "UseDevelopmentStorage=true",
			expected:   "UseDevelopmentStorage=true",
		},
		{
			name:       "s3 secret",
			connection: "s3://?access_key_id=AKIA&secret_access_key=shh",
			expected:   "s3://?access_key_id=AKIA&secret_access_key=REDACTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.connection))
		})
	}
}
