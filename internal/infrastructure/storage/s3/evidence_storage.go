package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

const (
	defaultRegion   = "ru-central1"
	defaultEndpoint = "https://storage.yandexcloud.net"
	defaultPrefix   = "evidence"
	contentTypeJSON = "application/json"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

// objectAPI - подмножество s3.Client, которое использует хранилище
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// EvidenceStorage хранит пакеты доказательств JSON-объектами в S3-совместимом бакете.
type EvidenceStorage struct {
	client objectAPI
	bucket string
	prefix string
}

func NewEvidenceStorage(ctx context.Context, cfg Config) (*EvidenceStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3 access key id and secret are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultRegion
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = &cfg.Endpoint
		options.UsePathStyle = cfg.UsePathStyle
	})

	return newEvidenceStorage(client, cfg.Bucket, cfg.KeyPrefix), nil
}

func newEvidenceStorage(client objectAPI, bucket, prefix string) *EvidenceStorage {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &EvidenceStorage{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: prefix,
	}
}

// Store сохраняет пакет под ключом; повторная запись перезаписывает объект.
func (s *EvidenceStorage) Store(ctx context.Context, key string, pkg *entity.EvidencePackage) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("evidence key is required")
	}
	if pkg == nil {
		return fmt.Errorf("evidence package is nil")
	}

	body, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("marshal evidence package: %w", err)
	}

	objectKey := s.objectKey(key)
	contentType := contentTypeJSON
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objectKey,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put object failed: %w", err)
	}
	return nil
}

// Retrieve возвращает nil, nil, если объекта нет.
func (s *EvidenceStorage) Retrieve(ctx context.Context, key string) (*entity.EvidencePackage, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("evidence key is required")
	}

	objectKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("get object failed: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}

	var pkg entity.EvidencePackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("unmarshal evidence package: %w", err)
	}
	return &pkg, nil
}

func (s *EvidenceStorage) objectKey(key string) string {
	return path.Join(s.prefix, strings.TrimSpace(key)+".json")
}
