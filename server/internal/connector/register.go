package connector

import (
	"time"

	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/model"

	"github.com/minio/minio-go/v7"
)

// RegisterAll 启动时把八种源类型的适配器挂进全局注册表。
// 没注册的类型在 Get 时直接 ConfigurationError。
func RegisterAll(minioClient *minio.Client, defaultBucket string, secrets core.SecretResolver, httpTimeout time.Duration) {
	api := NewAPIClient(httpTimeout, secrets)

	core.GlobalSources.Register(model.SourceTypeObjectStore, NewObjectStoreAdapter(minioClient, defaultBucket))
	core.GlobalSources.Register(model.SourceTypeBlobStore, NewBlobStoreAdapter(secrets, httpTimeout))
	core.GlobalSources.Register(model.SourceTypeDocumentLibrary, NewDocumentLibraryAdapter(api))
	core.GlobalSources.Register(model.SourceTypeERP, NewERPAdapter(api))
	core.GlobalSources.Register(model.SourceTypeIssueTracker, NewIssueTrackerAdapter(api))
	core.GlobalSources.Register(model.SourceTypeMessaging, NewMessagingAdapter(api))
	core.GlobalSources.Register(model.SourceTypeFeed, NewFeedAdapter(api))
	core.GlobalSources.Register(model.SourceTypeRelationalDB, NewRelationalDBAdapter(secrets))
}
