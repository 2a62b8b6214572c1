// Package storage manages the blob containers backing knowledge-store projections.
package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// Options configures a ContainerStore.
type Options struct {
	// MaxRetries overrides the SDK retry count. Negative disables retries.
	MaxRetries int32
	Logger     *slog.Logger
}

// ContainerStore deletes and inspects blob containers in one storage account.
type ContainerStore struct {
	client *azblob.Client
	logger *slog.Logger
}

// NewContainerStore connects with a storage account connection string.
func NewContainerStore(connectionString string, opts Options) (*ContainerStore, error) {
	if connectionString == "" {
		return nil, cerrors.New(cerrors.ErrCodeCredentialMissing, "knowledge store connection string is required", nil).
			WithSuggestion("Set AZURE_KNOWLEDGE_STORE_STORAGE_CONNECTION_STRING")
	}
	clientOpts := &azblob.ClientOptions{}
	if opts.MaxRetries != 0 {
		clientOpts.Retry = policy.RetryOptions{MaxRetries: opts.MaxRetries}
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, clientOpts)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, "invalid storage connection string", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ContainerStore{client: client, logger: opts.Logger}, nil
}

// DeleteContainer deletes a container and every blob in it.
// A missing container returns a not-found error.
func (s *ContainerStore) DeleteContainer(ctx context.Context, name string) error {
	_, err := s.client.DeleteContainer(ctx, name, nil)
	if err != nil {
		return mapError(err, name)
	}
	s.logger.Debug("container_deleted", slog.String("container", name))
	return nil
}

// Exists reports whether a container exists.
func (s *ContainerStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient(name).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, mapError(err, name)
}

func mapError(err error, container string) error {
	var ce *cerrors.CorpusError
	switch {
	case ctxDone(err):
		return err
	case bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		ce = cerrors.NotFoundError("container not found", err)
	case bloberror.HasCode(err, bloberror.ContainerBeingDeleted):
		// A second delete while the first is in flight converges to the same state.
		ce = cerrors.NotFoundError("container is already being deleted", err)
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure):
		ce = cerrors.New(cerrors.ErrCodeUnauthorized, "storage account rejected credentials", err)
	case bloberror.HasCode(err, bloberror.ServerBusy, bloberror.InternalError, bloberror.OperationTimedOut):
		ce = cerrors.New(cerrors.ErrCodeServiceUnavailable, "storage service unavailable", err)
	default:
		ce = cerrors.New(cerrors.ErrCodeInternal, "storage request failed", err)
	}
	return ce.WithDetail("container", container)
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
