package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fheroes2/webstage/metrics"
	"github.com/fheroes2/webstage/vfs"
)

const indexKey = "index.json"

// S3Config locates the bucket. Endpoint is optional; when set, path-style
// addressing is used so MinIO and similar servers work.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" json:"region"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
}

// s3API is the subset of *s3.Client the backend calls.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 keeps file contents as objects under <prefix>/files/ and the entry
// metadata in a single index object, rewritten on Commit.
type S3 struct {
	client s3API
	bucket string
	prefix string

	mu    sync.Mutex
	index map[string]vfs.EntryMeta
}

// NewS3 builds a client from cfg. Static credentials are used when both
// keys are set, otherwise the default AWS chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: empty bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	sub("store").Info("s3 backend configured", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "endpoint", cfg.Endpoint)
	return newS3WithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3WithClient(client s3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: key(prefix)}
}

func (b *S3) objectKey(parts ...string) string {
	return path.Join(append([]string{b.prefix}, parts...)...)
}

func (b *S3) List(ctx context.Context) (map[string]vfs.EntryMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.loadIndex(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]vfs.EntryMeta, len(b.index))
	for p, m := range b.index {
		out[p] = m
	}
	return out, nil
}

// loadIndex must be called with b.mu held.
func (b *S3) loadIndex(ctx context.Context) error {
	start := time.Now()
	data, err := b.get(ctx, b.objectKey(indexKey))
	if errors.Is(err, fs.ErrNotExist) {
		metrics.RecordBackendOp(TypeS3, "list", time.Since(start), true)
		b.index = make(map[string]vfs.EntryMeta)
		return nil
	}
	metrics.RecordBackendOp(TypeS3, "list", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}
	index := make(map[string]vfs.EntryMeta)
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	b.index = index
	return nil
}

func (b *S3) Load(ctx context.Context, p string) ([]byte, error) {
	start := time.Now()
	data, err := b.get(ctx, b.objectKey("files", key(p)))
	metrics.RecordBackendOp(TypeS3, "load", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	return data, nil
}

func (b *S3) get(ctx context.Context, k string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &fs.PathError{Op: "get", Path: k, Err: fs.ErrNotExist}
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *S3) Put(ctx context.Context, e vfs.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		if err := b.loadIndex(ctx); err != nil {
			return err
		}
	}
	k := key(e.Path)
	if !e.IsDir() {
		start := time.Now()
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(b.objectKey("files", k)),
			Body:          bytes.NewReader(e.Content),
			ContentLength: aws.Int64(int64(len(e.Content))),
		})
		metrics.RecordBackendOp(TypeS3, "put", time.Since(start), err == nil)
		if err != nil {
			return fmt.Errorf("put object %s: %w", k, err)
		}
	} else if old, ok := b.index[k]; ok && !old.IsDir() {
		if err := b.deleteObject(ctx, k); err != nil {
			return err
		}
	}
	b.index[k] = e.EntryMeta
	return nil
}

func (b *S3) Delete(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		if err := b.loadIndex(ctx); err != nil {
			return err
		}
	}
	k := key(p)
	m, ok := b.index[k]
	if !ok {
		return nil
	}
	if !m.IsDir() {
		if err := b.deleteObject(ctx, k); err != nil {
			return err
		}
	}
	delete(b.index, k)
	return nil
}

func (b *S3) deleteObject(ctx context.Context, k string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey("files", k)),
	})
	metrics.RecordBackendOp(TypeS3, "delete", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", k, err)
	}
	return nil
}

// Commit writes the index object.
func (b *S3) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		return nil
	}
	data, err := json.Marshal(b.index)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	start := time.Now()
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(indexKey)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	metrics.RecordBackendOp(TypeS3, "commit", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("put index: %w", err)
	}
	sub("store").Debug("s3 index committed", "entries", len(b.index))
	return nil
}
