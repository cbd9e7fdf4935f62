package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/matt-primrose/blob-download-task/pkg/models"
)

const (
	azureType          = "azure-blob"
	azureApplicationID = "blob-download-task"

	// Well-known Azurite account, see https://learn.microsoft.com/azure/storage/common/storage-use-azurite
	developmentStorageConnectionString = "DefaultEndpointsProtocol=http;" +
		"AccountName=devstoreaccount1;" +
		"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
		"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"
)

// AzureStorage implements the Store interface for Azure Blob Storage
type AzureStorage struct {
	client *azblob.Client
	logger *slog.Logger
}

// azureBlob is the part of the block, page and append blob clients used here
type azureBlob interface {
	DownloadStream(ctx context.Context, o *blob.DownloadStreamOptions) (blob.DownloadStreamResponse, error)
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
}

// NewAzureStorage creates a new Azure Blob Storage instance from a connection string
func NewAzureStorage(connectionString string, opts Options) (*AzureStorage, error) {
	connectionString = expandDevelopmentStorage(connectionString)

	clientOptions := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Telemetry: policy.TelemetryOptions{ApplicationID: azureApplicationID},
		},
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureStorage{
		client: client,
		logger: opts.logger(),
	}, nil
}

// OpenReader opens a download stream for the blob, resolving the client by blob kind
func (as *AzureStorage) OpenReader(ctx context.Context, ref BlobRef) (*Object, error) {
	bc, err := as.blobClient(ref)
	if err != nil {
		return nil, err
	}

	response, err := bc.DownloadStream(ctx, nil)
	if err != nil {
		return nil, as.wrapError("download", ref, err)
	}

	obj := &Object{Body: response.Body, Size: -1}
	if response.ContentLength != nil {
		obj.Size = *response.ContentLength
	}
	if response.ContentType != nil {
		obj.ContentType = *response.ContentType
	}

	as.logger.Debug("Opened Azure blob stream",
		"container", ref.Container,
		"blobName", ref.Name,
		"kind", ref.Kind.String(),
		"size", obj.Size,
	)

	return obj, nil
}

// Exists checks blob existence with a properties request
func (as *AzureStorage) Exists(ctx context.Context, ref BlobRef) (bool, error) {
	bc, err := as.blobClient(ref)
	if err != nil {
		return false, err
	}

	if _, err := bc.GetProperties(ctx, nil); err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, as.wrapError("get properties", ref, err)
	}
	return true, nil
}

// CreateContainerIfMissing creates the container, treating an existing one as success
func (as *AzureStorage) CreateContainerIfMissing(ctx context.Context, containerName string) error {
	cc := as.client.ServiceClient().NewContainerClient(containerName)

	_, err := cc.Create(ctx, &container.CreateOptions{})
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return as.wrapError("create container", BlobRef{Container: containerName}, err)
	}

	as.logger.Info("Created Azure blob container", "container", containerName)
	return nil
}

// Type returns the storage type
func (as *AzureStorage) Type() string {
	return azureType
}

// Close is a no-op; the Azure client holds no resources that need releasing
func (as *AzureStorage) Close() error {
	return nil
}

func (as *AzureStorage) blobClient(ref BlobRef) (azureBlob, error) {
	cc := as.client.ServiceClient().NewContainerClient(ref.Container)

	switch ref.Kind {
	case models.BlobKindBlock:
		return cc.NewBlockBlobClient(ref.Name), nil
	case models.BlobKindPage:
		return cc.NewPageBlobClient(ref.Name), nil
	case models.BlobKindAppend:
		return cc.NewAppendBlobClient(ref.Name), nil
	default:
		return nil, &UnsupportedKindError{Backend: azureType, Kind: ref.Kind}
	}
}

func (as *AzureStorage) wrapError(op string, ref BlobRef, err error) error {
	if isContextError(err) {
		return err
	}
	if isAzureNotFound(err) {
		return notFound(ref, err)
	}

	storeErr := &StoreError{Backend: azureType, Op: op, Err: err}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		storeErr.StatusCode = respErr.StatusCode
		storeErr.Code = respErr.ErrorCode
	}
	return storeErr
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err,
		bloberror.BlobNotFound,
		bloberror.ContainerNotFound,
		bloberror.ResourceNotFound,
	)
}

// expandDevelopmentStorage replaces the UseDevelopmentStorage shorthand with
// the full Azurite connection string, which the Go SDK cannot parse itself.
func expandDevelopmentStorage(connectionString string) string {
	for _, part := range strings.Split(connectionString, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(key, "UseDevelopmentStorage") && strings.EqualFold(value, "true") {
			return developmentStorageConnectionString
		}
	}
	return connectionString
}
