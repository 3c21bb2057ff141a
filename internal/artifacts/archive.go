// Package artifacts archives failure screenshots to S3-compatible object
// storage, keyed by run id so concurrent runs never collide. For tests, use
// TestArchive, which is backed by gofakes3.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Archive stores the artifacts of one run under "<run-id>/".
type Archive struct {
	s3Client   *s3.Client
	bucketName string
	runID      string
	publicURL  string
}

// Config holds the configuration for creating an Archive.
type Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty to use default AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is the base URL objects are reachable under, for log links.
	PublicURL string
	// UsePathStyle enables path-style addressing (required for gofakes3 and
	// most self-hosted S3-compatible services).
	UsePathStyle bool
	RunID        string
}

// New creates an Archive with the given configuration.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("artifacts: bucket name is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		return nil, errors.New("artifacts: run id is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewFromS3Client(s3Client, cfg.BucketName, cfg.RunID, cfg.PublicURL), nil
}

// NewFromS3Client creates an Archive from an existing S3 client.
func NewFromS3Client(s3Client *s3.Client, bucketName, runID, publicURL string) *Archive {
	return &Archive{
		s3Client:   s3Client,
		bucketName: bucketName,
		runID:      strings.Trim(runID, "/"),
		publicURL:  strings.TrimSuffix(publicURL, "/"),
	}
}

// Key returns the object key for a file name in this run.
func (a *Archive) Key(name string) string {
	return a.runID + "/" + strings.TrimLeft(filepath.ToSlash(name), "/")
}

// Upload stores content under this run and returns its key.
func (a *Archive) Upload(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	key := a.Key(name)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: failed to put object %q: %w", key, err)
	}
	return key, nil
}

// UploadFile stores a local file under its base name.
func (a *Archive) UploadFile(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("artifacts: failed to read %q: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return a.Upload(ctx, filepath.Base(path), content, contentType)
}

// Get retrieves the content stored under key.
// Returns ErrObjectNotFound if the key does not exist.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("artifacts: failed to get object %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to read object body %q: %w", key, err)
	}
	return data, nil
}

// List returns the keys stored for this run.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(a.runID + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("artifacts: failed to list %q: %w", a.runID, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// URL returns the path-style URL for key.
func (a *Archive) URL(key string) string {
	return a.publicURL + "/" + a.bucketName + "/" + strings.TrimPrefix(key, "/")
}

func (a *Archive) RunID() string {
	return a.runID
}

func (a *Archive) BucketName() string {
	return a.bucketName
}
