package store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// azureStore keeps artifact sets in an Azure blob container. The account
// name and key come from AZURE_STORAGE_ACCOUNT / AZURE_STORAGE_KEY.
type azureStore struct {
	container azblob.ContainerURL
	name      string
	prefix    string
}

func newAzureStore(container, prefix string) (*azureStore, error) {
	if container == "" {
		return nil, fmt.Errorf("azure store requires a container name")
	}

	account := os.Getenv("AZURE_STORAGE_ACCOUNT")
	key := os.Getenv("AZURE_STORAGE_KEY")
	if account == "" || key == "" {
		return nil, fmt.Errorf("azure store requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
	}

	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", account))
	if err != nil {
		return nil, fmt.Errorf("parse azure service URL: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	service := azblob.NewServiceURL(*serviceURL, pipeline)

	return &azureStore{
		container: service.NewContainerURL(container),
		name:      container,
		prefix:    prefix,
	}, nil
}

func (as *azureStore) blobName(key string) string {
	if as.prefix == "" {
		return key
	}
	return strings.TrimSuffix(as.prefix, "/") + "/" + key
}

func (as *azureStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s for upload: %w", key, err)
	}

	blobURL := as.container.NewBlockBlobURL(as.blobName(key))
	_, err = azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/sql",
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s to azure: %w", key, err)
	}
	return nil
}

func (as *azureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blobURL := as.container.NewBlockBlobURL(as.blobName(key))
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s from azure: %w", key, err)
	}
	return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3}), nil
}

func (as *azureStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	full := as.blobName(prefix)

	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := as.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: full,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s in azure: %w", prefix, err)
		}
		marker = resp.NextMarker

		for _, blob := range resp.Segment.BlobItems {
			key := blob.Name
			if as.prefix != "" {
				key = strings.TrimPrefix(key, strings.TrimSuffix(as.prefix, "/")+"/")
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (as *azureStore) Location() string {
	if as.prefix == "" {
		return "azblob://" + as.name
	}
	return "azblob://" + as.name + "/" + as.prefix
}
