// Package snapshot exports board partitions as JSON documents to S3 compatible storage.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"olie/internal/board"
	"olie/internal/config"
	"olie/internal/models"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("snapshots not configured")

const requestTimeout = 10 * time.Second

// API is the part of the S3 client used here.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client initializes an S3 client using the provided configuration.
// It is compatible with MinIO and other S3-compatible services.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid S3 endpoint: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Document is the JSON body written for each snapshot.
type Document struct {
	Board      models.Board    `json:"board"`
	ExportedAt time.Time       `json:"exported_at"`
	Partition  board.Partition `json:"partition"`
}

// Exporter writes board snapshots to one bucket.
type Exporter struct {
	client API
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter binds client to the bucket and key prefix of cfg.
func NewExporter(client API, cfg config.S3Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CheckBucket verifies that the bucket exists and is reachable.
func (e *Exporter) CheckBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := e.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return fmt.Errorf("bucket %s does not exist", e.bucket)
		}
		return fmt.Errorf("check bucket: %w", err)
	}
	return nil
}

// Export writes a timestamped snapshot and overwrites the board's latest.json. It returns
// the timestamped key.
func (e *Exporter) Export(ctx context.Context, b models.Board, p board.Partition) (string, error) {
	doc := Document{Board: b, ExportedAt: e.now(), Partition: p}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	dir := path.Join(e.prefix, "boards", strconv.FormatInt(b.ID, 10))
	key := path.Join(dir, doc.ExportedAt.Format("20060102T150405Z")+".json")
	for _, k := range []string{key, path.Join(dir, "latest.json")} {
		if err := e.put(ctx, k, data); err != nil {
			return "", err
		}
	}

	e.logger.Info("board snapshot exported",
		slog.Int64("board", b.ID), slog.String("bucket", e.bucket), slog.String("key", key), slog.Int("cards", p.Len()))
	return key, nil
}

func (e *Exporter) put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Source pairs a board with the partition to export.
type Source struct {
	Board     models.Board
	Partition board.Partition
}

// ExportAll exports sources with at most limit uploads in flight. It stops at the first
// failure and returns the keys written so far, indexed like sources.
func (e *Exporter) ExportAll(ctx context.Context, sources []Source, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 4
	}
	keys := make([]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			key, err := e.Export(gctx, src.Board, src.Partition)
			if err != nil {
				return fmt.Errorf("board %d: %w", src.Board.ID, err)
			}
			keys[i] = key
			return nil
		})
	}
	err := g.Wait()
	return keys, err
}
