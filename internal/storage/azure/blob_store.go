// Package azure archives raw article bodies in Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// uploader is the slice of *azblob.Client used here.
type uploader interface {
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader,
		o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	URL() string
}

// BlobStore writes objects into one container.
type BlobStore struct {
	client    uploader
	container string
}

// New connects with an account connection string.
func New(connectionString, container string) (*BlobStore, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, errors.New("azure connection string is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return newWithClient(client, container)
}

func newWithClient(client uploader, container string) (*BlobStore, error) {
	if strings.TrimSpace(container) == "" {
		return nil, errors.New("azure container is required")
	}
	return &BlobStore{client: client, container: container}, nil
}

// PutObject streams data into the container and returns the blob URL.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadStream(ctx, s.container, path, data, opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return strings.TrimRight(s.client.URL(), "/") + "/" + s.container + "/" + path, nil
}
