package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// s3Store keeps artifact sets in an S3 bucket. Credentials come from the
// standard AWS chain (environment, shared config, instance role).
type s3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

func newS3Store(bucket, prefix string) (*s3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket name")
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}

	return &s3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (ss *s3Store) objectKey(key string) string {
	if ss.prefix == "" {
		return key
	}
	return strings.TrimSuffix(ss.prefix, "/") + "/" + key
}

func (ss *s3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := ss.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(ss.bucket),
		Key:         aws.String(ss.objectKey(key)),
		Body:        r,
		ContentType: aws.String("application/sql"),
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3: %w", key, err)
	}
	return nil
}

func (ss *s3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := ss.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(ss.objectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s from s3: %w", key, err)
	}
	return result.Body, nil
}

func (ss *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	full := ss.objectKey(prefix)

	err := ss.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(ss.bucket),
		Prefix: aws.String(full),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := *obj.Key
			if ss.prefix != "" {
				key = strings.TrimPrefix(key, strings.TrimSuffix(ss.prefix, "/")+"/")
			}
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %s in s3: %w", prefix, err)
	}
	return keys, nil
}

func (ss *s3Store) Location() string {
	if ss.prefix == "" {
		return "s3://" + ss.bucket
	}
	return "s3://" + ss.bucket + "/" + ss.prefix
}
