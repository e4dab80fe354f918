package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/golang/glog"
)

// BlobStore is the object storage collaborator: source video download,
// record upload and object tag reads.
type BlobStore interface {
	Download(ctx context.Context, bucket, key, destPath string) error
	Put(ctx context.Context, bucket, key string, body []byte, tags map[string]string) error
	ReadTags(ctx context.Context, bucket, key string) (map[string]string, error)
}

type S3Store struct {
	client     *s3.Client
	downloader *manager.Downloader
}

func NewS3Store(ctx context.Context) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:     client,
		downloader: manager.NewDownloader(client),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, bucket, key, destPath string) error {
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("error creating download file %q: %w", destPath, err)
	}
	defer file.Close()

	n, err := s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("error downloading object bucket=%s key=%q: %w", bucket, key, err)
	}
	glog.Infof("Downloaded object bucket=%s key=%q size=%d dest=%q", bucket, key, n, destPath)
	return nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, tags map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	if len(tags) > 0 {
		input.Tagging = aws.String(encodeTags(tags))
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("error putting object bucket=%s key=%q: %w", bucket, key, err)
	}
	return nil
}

// ReadTags returns the object's tag set. A missing object yields an empty
// set: tag lookup is best-effort and the defaults cover absent fields.
func (s *S3Store) ReadTags(ctx context.Context, bucket, key string) (map[string]string, error) {
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			glog.Warningf("Object not found reading tags bucket=%s key=%q", bucket, key)
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("error reading object tags bucket=%s key=%q: %w", bucket, key, err)
	}
	tags := make(map[string]string, len(out.TagSet))
	for _, tag := range out.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return tags, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "NoSuchKey" || code == "NotFound"
}

func encodeTags(tags map[string]string) string {
	values := url.Values{}
	for key, value := range tags {
		values.Set(key, value)
	}
	return values.Encode()
}
