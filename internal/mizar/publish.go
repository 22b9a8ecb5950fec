package mizar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps the S3 client for an S3-compatible binary mirror.
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// NewMirrorClient initializes a mirror client from configuration values.
func NewMirrorClient(ctx context.Context, cfg *Config) (*MirrorClient, error) {
	endpoint := cfg.Values["MIRROR_ENDPOINT"]
	accessKey := cfg.Values["MIRROR_ACCESS_KEY_ID"]
	secretKey := cfg.Values["MIRROR_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["MIRROR_BUCKET"]

	if endpoint == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (MIRROR_ENDPOINT, MIRROR_ACCESS_KEY_ID, MIRROR_SECRET_ACCESS_KEY, MIRROR_BUCKET)")
	}

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}
	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".xz"):
		return "application/x-xz"
	default:
		return "application/octet-stream"
	}
}

// UploadLocalFile uploads a file from disk to the mirror.
func (m *MirrorClient) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	return err
}

// ListObjects returns the keys under a prefix, for the publish overview.
func (m *MirrorClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.BucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// Publish uploads a built package's artifact tarball, manifest, meta record
// and stored build log to the configured mirror. The artifact is required;
// the rest is uploaded when present.
func Publish(ctx context.Context, cfg *Config, id string) error {
	client, err := NewMirrorClient(ctx, cfg)
	if err != nil {
		return err
	}

	artifact := filepath.Join(cfg.BinDir, id+".tar.gz")
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("no artifact for %s; run a full construction first", id)
	}

	infof("Publishing %s\n", id)
	if err := client.UploadLocalFile(ctx, id+".tar.gz", artifact); err != nil {
		return fmt.Errorf("uploading artifact: %w", err)
	}

	for _, suffix := range []string{".files", ".meta", ".log.xz"} {
		path := filepath.Join(cfg.PkgDB, id+suffix)
		if _, err := os.Stat(path); err != nil {
			debugf("Skipping %s: %v\n", path, err)
			continue
		}
		if err := client.UploadLocalFile(ctx, id+suffix, path); err != nil {
			return fmt.Errorf("uploading %s: %w", id+suffix, err)
		}
	}

	infof("Published %s\n", id)
	return nil
}
