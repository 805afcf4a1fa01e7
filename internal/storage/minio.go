package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
)

const bucketCheckTimeout = 5 * time.Second

// Client 保存导出的简历 PDF。
// writer 走内网地址读写对象，signer 使用对外地址签发下载链接，二者共用同一组凭证。
type Client struct {
	writer *minio.Client
	signer *minio.Client
	bucket string
}

// NewClient 根据配置初始化客户端，并确认导出 Bucket 可用。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}

	writer, err := newMinioClient(cfg, cfg.Endpoint, cfg.UseSSL, lookup)
	if err != nil {
		return nil, fmt.Errorf("init minio writer: %w", err)
	}

	host, secure, err := splitPublicEndpoint(cfg.PublicEndpoint)
	if err != nil {
		return nil, err
	}
	signer, err := newMinioClient(cfg, host, secure, lookup)
	if err != nil {
		return nil, fmt.Errorf("init minio signer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), bucketCheckTimeout)
	defer cancel()
	if err := ensureBucket(ctx, writer, cfg); err != nil {
		return nil, err
	}

	return &Client{writer: writer, signer: signer, bucket: cfg.Bucket}, nil
}

func newMinioClient(cfg config.MinIOConfig, endpoint string, secure bool, lookup minio.BucketLookupType) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
}

// splitPublicEndpoint 把 http(s)://host[:port] 形式的对外地址拆成 host 与是否启用 TLS。
func splitPublicEndpoint(raw string) (string, bool, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("minio public endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func ensureBucket(ctx context.Context, client *minio.Client, cfg config.MinIOConfig) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if !cfg.AutoCreateBucket {
		return fmt.Errorf("bucket %q does not exist and auto create is disabled", cfg.Bucket)
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
	}
	return nil
}

func parseBucketLookup(value string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	default:
		return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", value)
	}
}

// UploadFile 写入一个对象。导出文件只会被签名链接读取，因此不设置公开 ACL。
func (c *Client) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error) {
	info, err := c.writer.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "private, max-age=0",
	})
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", objectName, err)
	}
	return &info, nil
}

// GeneratePresignedURL 签发限时下载链接，浏览器打开时以附件形式保存。
func (c *Client) GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", contentDisposition(objectKey))
	signed, err := c.signer.PresignedGetObject(ctx, c.bucket, objectKey, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", objectKey, err)
	}
	return signed.String(), nil
}

func contentDisposition(objectKey string) string {
	name := objectKey
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "resume.pdf"
	}
	return fmt.Sprintf("attachment; filename=%q", name)
}

// DeletePrefix 批量删除某个前缀下的全部对象，常用于删除简历时清理它的历史导出。
// 对象已不存在的情况不视为错误。
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	toRemove := make(chan minio.ObjectInfo)
	go func() {
		defer close(toRemove)
		for obj := range c.writer.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr = fmt.Errorf("list objects under %q: %w", prefix, obj.Err)
				return
			}
			select {
			case toRemove <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rmErr := range c.writer.RemoveObjects(ctx, c.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil && !IsNoSuchKey(rmErr.Err) {
			errs = append(errs, fmt.Errorf("remove %q: %w", rmErr.ObjectName, rmErr.Err))
		}
	}
	// RemoveObjects 的结果通道在 toRemove 关闭后才会关闭，此时 listErr 已写定。
	if listErr != nil {
		errs = append(errs, listErr)
	}
	return errors.Join(errs...)
}
