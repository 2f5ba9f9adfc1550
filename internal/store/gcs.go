package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsStore keeps artifact sets in a Google Cloud Storage bucket.
type gcsStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCSStore(ctx context.Context, bucket, prefix string) (*gcsStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs store requires a bucket name")
	}

	var client *storage.Client
	var err error
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &gcsStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (gs *gcsStore) objectName(key string) string {
	if gs.prefix == "" {
		return key
	}
	return strings.TrimSuffix(gs.prefix, "/") + "/" + key
}

func (gs *gcsStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	w := gs.client.Bucket(gs.bucket).Object(gs.objectName(key)).NewWriter(ctx)
	w.ContentType = "application/sql"

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write %s to gcs: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s to gcs: %w", key, err)
	}
	return nil
}

func (gs *gcsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := gs.client.Bucket(gs.bucket).Object(gs.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("download %s from gcs: %w", key, err)
	}
	return r, nil
}

func (gs *gcsStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := gs.client.Bucket(gs.bucket).Objects(ctx, &storage.Query{Prefix: gs.objectName(prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s in gcs: %w", prefix, err)
		}
		key := attrs.Name
		if gs.prefix != "" {
			key = strings.TrimPrefix(key, strings.TrimSuffix(gs.prefix, "/")+"/")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (gs *gcsStore) Location() string {
	if gs.prefix == "" {
		return "gs://" + gs.bucket
	}
	return "gs://" + gs.bucket + "/" + gs.prefix
}
