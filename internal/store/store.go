// Package store moves artifact sets between the local filesystem and a
// remote object store. A store is addressed by URL: s3://bucket/prefix,
// gs://bucket/prefix, azblob://container/prefix, or a plain directory path.
package store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/logging"
)

// Store is the narrow object-store surface both transfer directions need.
type Store interface {
	// Put uploads one object under key.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens one object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Location describes the store for logs and summaries.
	Location() string
}

// FromURL creates the store addressed by rawURL.
func FromURL(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewFatal(errors.ErrorTypeStorage,
			fmt.Sprintf("invalid store URL %q", rawURL), err)
	}

	prefix := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		return newS3Store(u.Host, prefix)
	case "gs":
		return newGCSStore(ctx, u.Host, prefix)
	case "azblob":
		return newAzureStore(u.Host, prefix)
	case "", "file":
		return newLocalStore(filepath.Join(u.Host, u.Path))
	default:
		return nil, errors.NewFatal(errors.ErrorTypeStorage,
			fmt.Sprintf("unsupported store scheme %q (s3, gs, azblob, file)", u.Scheme), nil)
	}
}

// UploadSet pushes every recorded stage file of set, keyed as
// <database>/<filename>. A transfer failure is fatal to the upload step but
// leaves the local set untouched.
func UploadSet(ctx context.Context, s Store, set *artifact.Set, logger *logging.Logger) error {
	for _, stage := range artifact.ExportStages(true) {
		file, ok := set.Files[stage]
		if !ok {
			continue
		}

		f, err := os.Open(file.Path)
		if err != nil {
			return errors.NewFatal(errors.ErrorTypeStorage,
				fmt.Sprintf("failed to open %s for upload", file.Path), err)
		}

		key := set.Database + "/" + filepath.Base(file.Path)
		err = s.Put(ctx, key, f, file.SizeBytes)
		f.Close()
		if err != nil {
			return errors.NewFatal(errors.ErrorTypeStorage,
				fmt.Sprintf("failed to upload %s to %s", key, s.Location()), err)
		}

		logger.WithFields(map[string]interface{}{
			"key":   key,
			"store": s.Location(),
			"bytes": file.SizeBytes,
		}).Debug("Uploaded stage file")
	}
	return nil
}

// FetchSet downloads every object under <database>/ into destDir, creating
// the directory when needed. Returns the number of files fetched.
func FetchSet(ctx context.Context, s Store, database, destDir string, logger *logging.Logger) (int, error) {
	keys, err := s.List(ctx, database+"/")
	if err != nil {
		return 0, errors.NewFatal(errors.ErrorTypeStorage,
			fmt.Sprintf("failed to list %s in %s", database, s.Location()), err)
	}
	if len(keys) == 0 {
		return 0, errors.NewFatal(errors.ErrorTypeStorage,
			fmt.Sprintf("no artifacts for database %s in %s", database, s.Location()), nil)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, errors.NewFatal(errors.ErrorTypeStorage,
			fmt.Sprintf("failed to create destination directory %s", destDir), err)
	}

	fetched := 0
	for _, key := range keys {
		rc, err := s.Get(ctx, key)
		if err != nil {
			return fetched, errors.NewFatal(errors.ErrorTypeStorage,
				fmt.Sprintf("failed to fetch %s from %s", key, s.Location()), err)
		}

		dest := filepath.Join(destDir, filepath.Base(key))
		f, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return fetched, errors.NewFatal(errors.ErrorTypeStorage,
				fmt.Sprintf("failed to create %s", dest), err)
		}

		_, copyErr := io.Copy(f, rc)
		rc.Close()
		if err := f.Close(); copyErr == nil {
			copyErr = err
		}
		if copyErr != nil {
			return fetched, errors.NewFatal(errors.ErrorTypeStorage,
				fmt.Sprintf("failed to write %s", dest), copyErr)
		}

		fetched++
		logger.WithFields(map[string]interface{}{
			"key":  key,
			"dest": dest,
		}).Debug("Fetched stage file")
	}

	return fetched, nil
}
