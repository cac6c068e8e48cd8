package connector

import (
	"context"
	"time"

	"GreenLedger/server/internal/core"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStoreAdapter 连接外部 S3 兼容存储（区别于平台自己的桶）。
// 支持一次性的备用端点回退：主端点请求失败时同一轮换到 fallback_endpoint
// 再试一次，不做无限重试。
// Config: {"endpoint": "...", "fallback_endpoint": "可选",
//          "bucket": "...", "prefix": "...",
//          "access_key_secret": "...", "secret_key_secret": "..."}
type BlobStoreAdapter struct {
	secrets core.SecretResolver
	timeout time.Duration
}

func NewBlobStoreAdapter(secrets core.SecretResolver, timeout time.Duration) *BlobStoreAdapter {
	return &BlobStoreAdapter{secrets: secrets, timeout: timeout}
}

func (a *BlobStoreAdapter) ValidateConfig(config map[string]interface{}) error {
	for _, key := range []string{"endpoint", "bucket", "prefix", "access_key_secret", "secret_key_secret"} {
		if _, err := core.RequireString(config, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *BlobStoreAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *BlobStoreAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	if err := a.ValidateConfig(config); err != nil {
		return nil, err
	}
	endpoint, _ := core.RequireString(config, "endpoint")

	records, err := a.fetchFrom(ctx, endpoint, config)
	if err == nil {
		return records, nil
	}
	if !core.IsRetryable(err) {
		return nil, err
	}

	// 主端点挂了，同一轮切换备用端点再试一次
	fallback := core.OptionalString(config, "fallback_endpoint", "")
	if fallback == "" {
		return nil, err
	}
	return a.fetchFrom(ctx, fallback, config)
}

func (a *BlobStoreAdapter) fetchFrom(ctx context.Context, endpoint string, config map[string]interface{}) ([]core.RawRecord, error) {
	client, err := a.newClient(endpoint, config)
	if err != nil {
		return nil, err
	}
	inner := NewObjectStoreAdapter(client, core.OptionalString(config, "bucket", ""))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return inner.FetchRows(ctx, config)
}

func (a *BlobStoreAdapter) newClient(endpoint string, config map[string]interface{}) (*minio.Client, error) {
	akName, _ := core.RequireString(config, "access_key_secret")
	skName, _ := core.RequireString(config, "secret_key_secret")

	ak, err := a.secrets.Resolve(akName)
	if err != nil {
		return nil, err
	}
	sk, err := a.secrets.Resolve(skName)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(ak, sk, ""),
		Secure: false,
	})
	if err != nil {
		return nil, core.NewConfigError("blob 存储客户端初始化失败: %v", err)
	}
	return client, nil
}
