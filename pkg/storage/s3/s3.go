// Package s3 stores run records as snappy-compressed CBOR objects in an S3
// or S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/storage/internal/runs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"
)

const objectSuffix = ".cbor.sz"

// API is the subset of the S3 client the repository uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"            envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"            envDefault:"fedround/runs/"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"    envDefault:"false"`
}

// NewClient builds an S3 client from cfg. Static credentials are used only
// when both keys are set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

type Repository struct {
	client API
	bucket string
	prefix string
}

func NewRepository(client API, bucket, prefix string) *Repository {
	return &Repository{client: client, bucket: bucket, prefix: prefix}
}

func (r *Repository) key(id string) string {
	return r.prefix + id + objectSuffix
}

func (r *Repository) Save(ctx context.Context, rec fl.RunRecord) error {
	if rec.ID == "" || strings.Contains(rec.ID, "/") {
		return fmt.Errorf("%w: %q", pkgerrors.ErrInvalidID, rec.ID)
	}
	data, err := fl.EncodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(rec.ID)),
		Body:   bytes.NewReader(snappy.Encode(nil, data)),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (fl.RunRecord, error) {
	return r.getKey(ctx, r.key(id))
}

func (r *Repository) getKey(ctx context.Context, key string) (fl.RunRecord, error) {
	resp, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fl.RunRecord{}, pkgerrors.ErrNotFound
		}

		return fl.RunRecord{}, fmt.Errorf("S3 get object failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fl.RunRecord{}, fmt.Errorf("S3 read body failed: %w", err)
	}
	data, err := snappy.Decode(nil, body)
	if err != nil {
		return fl.RunRecord{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}

	return fl.DecodeRecord(data)
}

func (r *Repository) List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})

	var recs []fl.RunRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, objectSuffix) {
				continue
			}
			rec, err := r.getKey(ctx, key)
			if err != nil {
				return nil, 0, err
			}
			recs = append(recs, rec)
		}
	}

	page, total := runs.Page(recs, offset, limit)

	return page, total, nil
}

// Delete reports ErrNotFound for a missing object; S3 itself treats such a
// delete as a success.
func (r *Repository) Delete(ctx context.Context, id string) error {
	key := aws.String(r.key(id))
	if _, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(r.bucket), Key: key}); err != nil {
		if isNotFound(err) {
			return pkgerrors.ErrNotFound
		}

		return fmt.Errorf("S3 head object failed: %w", err)
	}

	if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(r.bucket), Key: key}); err != nil {
		return fmt.Errorf("S3 delete object failed: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound

	return errors.As(err, &nsk) || errors.As(err, &nf)
}
