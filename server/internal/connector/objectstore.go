package connector

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"GreenLedger/server/internal/core"

	"github.com/minio/minio-go/v7"
)

// ObjectStoreAdapter 从 MinIO 桶里摄取 JSON 对象。
// 每个对象是一条记录或一个记录数组，表名取 prefix 的最后一段。
// Config: {"prefix": "esg/energy", "bucket": "可选，默认用平台桶"}
type ObjectStoreAdapter struct {
	client        *minio.Client
	defaultBucket string
}

func NewObjectStoreAdapter(client *minio.Client, defaultBucket string) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{client: client, defaultBucket: defaultBucket}
}

func (a *ObjectStoreAdapter) ValidateConfig(config map[string]interface{}) error {
	if _, err := core.RequireString(config, "prefix"); err != nil {
		return err
	}
	return nil
}

func (a *ObjectStoreAdapter) DiscoverSchema(ctx context.Context, config map[string]interface{}) ([]core.ColumnInfo, error) {
	records, err := a.FetchRows(ctx, config)
	if err != nil {
		return nil, err
	}
	return schemaFromRecords(records), nil
}

func (a *ObjectStoreAdapter) FetchRows(ctx context.Context, config map[string]interface{}) ([]core.RawRecord, error) {
	prefix, err := core.RequireString(config, "prefix")
	if err != nil {
		return nil, err
	}
	bucket := core.OptionalString(config, "bucket", a.defaultBucket)
	table := tableFromPrefix(prefix)

	var records []core.RawRecord
	for obj := range a.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, core.NewTransientError(obj.Err, "列举对象失败: %s/%s", bucket, prefix)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		payloads, err := a.readObject(ctx, bucket, obj.Key)
		if err != nil {
			return nil, err
		}
		for _, p := range payloads {
			records = append(records, core.RawRecord{Table: table, Payload: p})
		}
	}
	return records, nil
}

func (a *ObjectStoreAdapter) readObject(ctx context.Context, bucket, key string) ([]map[string]interface{}, error) {
	obj, err := a.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, core.NewTransientError(err, "读取对象失败: %s", key)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, core.NewTransientError(err, "读取对象失败: %s", key)
	}
	return decodeRecords(body)
}

// decodeRecords 对象内容兼容三种形态：单条记录、记录数组、NDJSON（一行一条）
func decodeRecords(body []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]interface{}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, core.NewTransientError(err, "对象不是合法 JSON 数组")
		}
		return list, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return []map[string]interface{}{single}, nil
	}

	// 整体解析失败再按 NDJSON 逐行试
	var records []map[string]interface{}
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, core.NewTransientError(err, "对象既不是 JSON 也不是 NDJSON")
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, core.NewTransientError(nil, "对象内容为空")
	}
	return records, nil
}

func tableFromPrefix(prefix string) string {
	p := strings.TrimSuffix(prefix, "/")
	if p == "" {
		return "objects"
	}
	return path.Base(p)
}

// schemaFromRecords 按表分组采样推断
func schemaFromRecords(records []core.RawRecord) []core.ColumnInfo {
	byTable := map[string][]map[string]interface{}{}
	for _, r := range records {
		byTable[r.Table] = append(byTable[r.Table], r.Payload)
	}
	var cols []core.ColumnInfo
	for table, samples := range byTable {
		cols = append(cols, InferColumns(table, samples)...)
	}
	return cols
}
