package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/sse"

	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/utils"
)

// Store is the object-store gateway the engines talk to. All operations run
// under the service's static credentials.
type Store interface {
	Copy(ctx context.Context, dstBucket, dstKey, srcBucket, srcKey string) error
	Delete(ctx context.Context, bucket, key string) error
	// GetStream opens at most maxBytes of the object; the returned size is
	// the full object size so callers can tell whether output is truncated.
	GetStream(ctx context.Context, bucket, key string, maxBytes int64) (io.ReadCloser, int64, error)
	FGet(ctx context.Context, bucket, key, localPath string) error
	FPut(ctx context.Context, bucket, key, localPath string) error
	// MakeDatasetBucket creates an SSE-encrypted bucket and grants the
	// creator full access to the bucket and everything under it.
	MakeDatasetBucket(ctx context.Context, code, creator string) error
	// LocationURI renders the canonical stored location of an object.
	LocationURI(bucket, key string) string
}

type Config struct {
	Endpoint  string
	UseHTTPS  bool
	AccessKey string
	SecretKey string
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		Endpoint:  utils.GetEnv("MINIO_ENDPOINT", "minio.minio:9000", log),
		UseHTTPS:  utils.GetEnvAsBool("MINIO_HTTPS", false, log),
		AccessKey: utils.GetEnv("MINIO_ACCESS_KEY", "", log),
		SecretKey: utils.GetEnv("MINIO_SECRET_KEY", "", log),
	}
}

type store struct {
	log    *logger.Logger
	client *minio.Client
	cfg    Config
}

func New(log *logger.Logger, cfg Config) (Store, error) {
	serviceLog := log.With("service", "ObjectStore")
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseHTTPS,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	serviceLog.Info("Object store initialized", "endpoint", cfg.Endpoint, "https", cfg.UseHTTPS)
	return &store{log: serviceLog, client: client, cfg: cfg}, nil
}

func (s *store) Copy(ctx context.Context, dstBucket, dstKey, srcBucket, srcKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copy %s/%s -> %s/%s: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *store) GetStream(ctx context.Context, bucket, key string, maxBytes int64) (io.ReadCloser, int64, error) {
	stat, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	opts := minio.GetObjectOptions{}
	if maxBytes > 0 && stat.Size > maxBytes {
		if err := opts.SetRange(0, maxBytes-1); err != nil {
			return nil, 0, fmt.Errorf("set range on %s/%s: %w", bucket, key, err)
		}
	}
	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return obj, stat.Size, nil
}

func (s *store) FGet(ctx context.Context, bucket, key, localPath string) error {
	if err := s.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("fget %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *store) FPut(ctx context.Context, bucket, key, localPath string) error {
	if _, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("fput %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *store) MakeDatasetBucket(ctx context.Context, code, creator string) error {
	if err := s.client.MakeBucket(ctx, code, minio.MakeBucketOptions{}); err != nil {
		exists, errCheck := s.client.BucketExists(ctx, code)
		if errCheck == nil && exists {
			return fmt.Errorf("bucket %q already exists", code)
		}
		return fmt.Errorf("make bucket %q: %w", code, err)
	}
	if err := s.client.SetBucketEncryption(ctx, code, sse.NewConfigurationSSES3()); err != nil {
		return fmt.Errorf("enable encryption on %q: %w", code, err)
	}
	if err := s.client.SetBucketPolicy(ctx, code, creatorPolicy(code, creator)); err != nil {
		return fmt.Errorf("set policy on %q: %w", code, err)
	}
	return nil
}

func (s *store) LocationURI(bucket, key string) string {
	return BuildLocationURI("minio", s.cfg.Endpoint, bucket, key)
}

// creatorPolicy grants the dataset creator full access to the bucket and all
// objects under it.
func creatorPolicy(bucket, creator string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": map[string]any{"AWS": []string{fmt.Sprintf("arn:aws:iam:::user/%s", creator)}},
				"Action":    []string{"s3:*"},
				"Resource": []string{
					fmt.Sprintf("arn:aws:s3:::%s", bucket),
					fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
				},
			},
		},
	}
	raw, _ := json.Marshal(policy)
	return string(raw)
}
